package api

import (
	"net/http"
)

type route struct {
	pattern string
	handler http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{"POST /api/v1/flows", h.SubmitFlow},
		{"GET /api/v1/flows", h.ListFlowTypes},

		{"GET /api/v1/queues", h.ListQueues},
		{"GET /api/v1/connectors", h.GetConnectors},

		{"GET /api/v1/outcomes", h.ListOutcomes},
		{"GET /api/v1/outcomes/{id}", h.GetOutcome},

		{"GET /api/v1/schedules", h.ListSchedules},
		{"POST /api/v1/schedules/{name}/fire", h.FireSchedule},
	}
}

// RegisterRoutes вешает маршруты API на mux под общей цепочкой middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(RequestID(), Recovery(h.logger), Logging(h.logger))
	for _, rt := range h.routes() {
		mux.Handle(rt.pattern, chain(rt.handler))
	}
}
