package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Conveyor/internal/intake"
)

// SubmitFlow принимает заявку и ставит flow в очередь.
// POST /api/v1/flows
func (h *Handler) SubmitFlow(w http.ResponseWriter, r *http.Request) {
	var req intake.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	req.Source = intake.SourceAPI

	f, err := h.intake.Submit(r.Context(), req)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Accepted(w, SubmitFromFlow(f))
}

// ListFlowTypes возвращает типы flows из каталога.
// GET /api/v1/flows
func (h *Handler) ListFlowTypes(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()

	result := make([]FlowTypeResponse, 0, len(names))
	for _, name := range names {
		spec, err := h.catalog.Get(name)
		if err != nil {
			continue
		}
		result = append(result, FlowTypeFromSpec(spec))
	}

	List(w, result, len(result))
}
