package api

import (
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ListSchedules возвращает расписания со временем следующего запуска.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		List(w, []scheduler.EntryInfo{}, 0)
		return
	}

	entries := h.schedules.Entries()
	List(w, entries, len(entries))
}

// FireSchedule немедленно подаёт заявку расписания.
// POST /api/v1/schedules/{name}/fire
func (h *Handler) FireSchedule(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		NotFound(w, "schedule not found")
		return
	}

	name := r.PathValue("name")
	f, err := h.schedules.Fire(r.Context(), name)
	if HandleError(w, h.logger, err, "schedule not found") {
		return
	}

	Accepted(w, FireResponse{
		Schedule: name,
		FlowID:   f.ID(),
		FiredAt:  time.Now().UTC(),
	})
}
