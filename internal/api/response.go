package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ErrorCode — машинный код ошибки в ответе.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// retryAfterSeconds — подсказка клиенту при переполненных очередях.
const retryAfterSeconds = "1"

// responseBody — общий конверт ответа: либо data (+total для списков), либо error.
type responseBody struct {
	Data  any          `json:"data,omitempty"`
	Total *int         `json:"total,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail — тело ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body responseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Debug("write response failed", "error", err)
	}
}

// Success отвечает 200 с объектом.
func Success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, responseBody{Data: data})
}

// Accepted отвечает 202: заявка поставлена в очередь, результат будет позже.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, responseBody{Data: data})
}

// List отвечает 200 со списком и его длиной.
func List(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, responseBody{Data: data, Total: &total})
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, responseBody{Error: &ErrorDetail{Code: code, Message: message}})
}

// BadRequest — 400.
func BadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unavailable — 503 с Retry-After.
func Unavailable(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", retryAfterSeconds)
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError — 500. Причина пишется в лог, клиенту не отдаётся.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// errorClass сопоставляет доменные ошибки с ответом.
type errorClass struct {
	targets []error
	respond func(w http.ResponseWriter, err error, notFoundMsg string)
}

var errorClasses = []errorClass{
	{
		targets: []error{intake.ErrInvalidRequest},
		respond: func(w http.ResponseWriter, err error, _ string) { BadRequest(w, err.Error()) },
	},
	{
		targets: []error{flow.ErrUnknownSpec},
		respond: func(w http.ResponseWriter, err error, _ string) { NotFound(w, err.Error()) },
	},
	{
		targets: []error{repo.ErrNotFound, scheduler.ErrUnknownEntry},
		respond: func(w http.ResponseWriter, _ error, msg string) { NotFound(w, msg) },
	},
	{
		targets: []error{queue.ErrQueueFull, queue.ErrNoRoute},
		respond: func(w http.ResponseWriter, err error, _ string) { Unavailable(w, err.Error()) },
	},
}

// HandleError пишет ответ для err и возвращает true. Для nil ничего не делает.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}
	for _, class := range errorClasses {
		for _, target := range class.targets {
			if errors.Is(err, target) {
				class.respond(w, err, notFoundMsg)
				return true
			}
		}
	}
	InternalError(w, logger, err)
	return true
}
