package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/flow"
)

// Flow DTOs

// SubmitResponse — ответ на принятую заявку.
type SubmitResponse struct {
	FlowID   uuid.UUID `json:"flow_id"`
	Flow     string    `json:"flow"`
	RecordID string    `json:"record_id"`
	Status   string    `json:"status"`
}

// SubmitFromFlow конвертирует flow.TaskFlow в SubmitResponse.
func SubmitFromFlow(f *flow.TaskFlow) SubmitResponse {
	resp := SubmitResponse{
		FlowID:   f.ID(),
		RecordID: f.Record().ID(),
		Status:   f.Status().String(),
	}
	if spec := f.Spec(); spec != nil {
		resp.Flow = spec.Name
	}
	return resp
}

// FlowTypeResponse — описание типа flow из каталога.
type FlowTypeResponse struct {
	Name              string  `json:"name"`
	Connector         string  `json:"connector"`
	PreHandlers       int     `json:"pre_handlers"`
	PostHandlers      int     `json:"post_handlers"`
	MaxTimeoutSeconds float64 `json:"max_timeout_seconds"`
	MaxRetry          int     `json:"max_retry"`
}

// FlowTypeFromSpec конвертирует flow.Spec в FlowTypeResponse.
func FlowTypeFromSpec(s *flow.Spec) FlowTypeResponse {
	return FlowTypeResponse{
		Name:              s.Name,
		Connector:         s.Connector,
		PreHandlers:       len(s.PreHandlers),
		PostHandlers:      len(s.PostHandlers),
		MaxTimeoutSeconds: s.MaxTimeout.Seconds(),
		MaxRetry:          s.MaxRetry,
	}
}

// Connector DTOs

// ConnectorsResponse — зарегистрированные типы и число живых экземпляров.
type ConnectorsResponse struct {
	Types  []string `json:"types"`
	Active int      `json:"active"`
}

// Schedule DTOs

// FireResponse — ответ на ручной запуск расписания.
type FireResponse struct {
	Schedule string    `json:"schedule"`
	FlowID   uuid.UUID `json:"flow_id"`
	FiredAt  time.Time `json:"fired_at"`
}
