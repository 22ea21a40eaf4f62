package flow

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Handler — шаг pre- или post-обработки.
//
// result равен nil для pre-обработчиков; для post-обработчиков это
// последний результат dispatch. nil error — успех.
type Handler interface {
	Handle(ctx context.Context, record *domain.Record, result *domain.Result) error
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(ctx context.Context, record *domain.Record, result *domain.Result) error

// Handle вызывает f.
func (f HandlerFunc) Handle(ctx context.Context, record *domain.Record, result *domain.Result) error {
	return f(ctx, record, result)
}

// Named оборачивает функцию в Handler с именем (для логов и ошибок).
func Named(name string, fn HandlerFunc) Handler {
	return namedHandler{name: name, fn: fn}
}

type namedHandler struct {
	name string
	fn   HandlerFunc
}

func (h namedHandler) Handle(ctx context.Context, record *domain.Record, result *domain.Result) error {
	return h.fn(ctx, record, result)
}

func (h namedHandler) Name() string { return h.name }

// handlerName возвращает имя обработчика или его тип.
func handlerName(h Handler) string {
	if n, ok := h.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// ResultHandler — приёмник итогов flow, завершившегося со статусом COMPLETED.
type ResultHandler interface {
	HandleResult(ctx context.Context, record *domain.Record, results []domain.Result) error
}

// ResultHandlerFunc — адаптер функции к ResultHandler.
type ResultHandlerFunc func(ctx context.Context, record *domain.Record, results []domain.Result) error

// HandleResult вызывает f.
func (f ResultHandlerFunc) HandleResult(ctx context.Context, record *domain.Record, results []domain.Result) error {
	return f(ctx, record, results)
}
