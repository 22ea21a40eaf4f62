package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Имена встроенных обработчиков.
const (
	HandlerRequireContent = "require_content"
	HandlerRequireSuccess = "require_success"
	HandlerLogResult      = "log_result"
)

// HandlerRegistry — реестр именованных обработчиков.
//
// Нужен, чтобы flows из конфигурации могли ссылаться на обработчики по имени.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry создаёт пустой реестр.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// DefaultHandlers создаёт реестр со встроенными обработчиками.
func DefaultHandlers() *HandlerRegistry {
	r := NewHandlerRegistry()
	r.Register(HandlerRequireContent, RequireContent())
	r.Register(HandlerRequireSuccess, RequireSuccess())
	r.Register(HandlerLogResult, LogResult())
	return r
}

// Register добавляет обработчик. Существующий будет перезаписан.
func (r *HandlerRegistry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get возвращает обработчик по имени.
func (r *HandlerRegistry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	return h, nil
}

// Resolve возвращает обработчики по списку имён.
func (r *HandlerRegistry) Resolve(names []string) ([]Handler, error) {
	out := make([]Handler, 0, len(names))
	for _, name := range names {
		h, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Names возвращает отсортированный список имён.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireContent — pre-обработчик: команда не должна быть пустой.
func RequireContent() Handler {
	return Named(HandlerRequireContent, func(_ context.Context, record *domain.Record, _ *domain.Result) error {
		if record == nil || record.Command().Content() == "" {
			return errors.New("command content is empty")
		}
		return nil
	})
}

// RequireSuccess — post-обработчик: последний результат должен быть SUCCESS.
func RequireSuccess() Handler {
	return Named(HandlerRequireSuccess, func(_ context.Context, _ *domain.Record, result *domain.Result) error {
		if result == nil {
			return errors.New("no dispatch result")
		}
		if !result.Succeeded() {
			return fmt.Errorf("dispatch not succeeded: %s", result.ErrMsg())
		}
		return nil
	})
}

// LogResult — post-обработчик: пишет результат в лог, всегда успешен.
func LogResult() Handler {
	return Named(HandlerLogResult, func(ctx context.Context, record *domain.Record, result *domain.Result) error {
		logger := telemetry.FromContext(ctx)
		if result == nil {
			logger.Info("flow result", "record_id", record.ID(), "result", "none")
			return nil
		}
		logger.Info("flow result",
			"record_id", record.ID(),
			"category", result.Category,
			"code", result.Code,
			"message", result.Message,
		)
		return nil
	})
}
