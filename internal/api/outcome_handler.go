package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/repo"
)

const journalDisabled = "outcome journal is disabled"

// ListOutcomes возвращает последние завершённые flows.
// GET /api/v1/outcomes?spec=&status=&limit=&offset=
func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		NotFound(w, journalDisabled)
		return
	}

	query := r.URL.Query()
	filter := repo.OutcomeFilter{
		Spec:   query.Get("spec"),
		Status: query.Get("status"),
	}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		BadRequest(w, "invalid offset")
		return
	}

	outcomes, err := h.outcomes.ListRecent(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, outcomes, len(outcomes))
}

// GetOutcome возвращает итог flow по ID.
// GET /api/v1/outcomes/{id}
func (h *Handler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		NotFound(w, journalDisabled)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	outcome, err := h.outcomes.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "outcome not found") {
		return
	}

	Success(w, outcome)
}

// intParam парсит необязательный числовой параметр. Пусто — 0.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
