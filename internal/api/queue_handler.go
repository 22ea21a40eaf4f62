package api

import (
	"net/http"
)

// ListQueues возвращает снимок очередей в порядке регистрации.
// GET /api/v1/queues
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	stats := h.queues.Stats()
	List(w, stats, len(stats))
}

// GetConnectors возвращает типы коннекторов и число живых экземпляров.
// GET /api/v1/connectors
func (h *Handler) GetConnectors(w http.ResponseWriter, r *http.Request) {
	if h.connectors == nil {
		Success(w, ConnectorsResponse{Types: []string{}})
		return
	}
	Success(w, ConnectorsResponse{
		Types:  h.connectors.Types(),
		Active: h.connectors.Len(),
	})
}
