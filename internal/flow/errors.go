package flow

import (
	"errors"
	"fmt"
)

// Ошибки task flow.
var (
	// ErrHandlerFailure — pre- или post-обработчик сообщил об отказе.
	ErrHandlerFailure = errors.New("handler failure")

	// ErrFlowFinished — flow уже в финальном статусе, шаг не выполняется.
	ErrFlowFinished = errors.New("flow already finished")

	// ErrTimeout — flow превысил MaxTimeout.
	ErrTimeout = errors.New("flow timeout exceeded")

	// ErrNoDispatcher — шаг EXECUTING вызван без dispatcher.
	ErrNoDispatcher = errors.New("dispatcher is required")

	// ErrUnknownSpec — спецификация не найдена в каталоге.
	ErrUnknownSpec = errors.New("unknown flow spec")

	// ErrInvalidSpec — спецификация не прошла валидацию.
	ErrInvalidSpec = errors.New("invalid flow spec")

	// ErrUnknownHandler — обработчик не найден в реестре.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrAborted — flow остановлен снаружи (воркером).
	ErrAborted = errors.New("flow aborted")
)

// HandlerPhase — фаза, в которой работал обработчик.
type HandlerPhase string

const (
	PhasePre  HandlerPhase = "pre"
	PhasePost HandlerPhase = "post"
)

// HandlerError — отказ конкретного обработчика.
//
// errors.Is(err, ErrHandlerFailure) == true для любого HandlerError.
type HandlerError struct {
	Phase   HandlerPhase // pre или post
	Handler string       // имя обработчика
	Index   int          // позиция в списке обработчиков
	Err     error        // причина отказа
}

// Error реализует интерфейс error.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler %s (#%d) failed: %v", e.Phase, e.Handler, e.Index, e.Err)
}

// Unwrap возвращает ErrHandlerFailure и исходную причину.
func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailure, e.Err}
}
