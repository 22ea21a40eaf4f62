package worker

import (
	"context"

	"github.com/shaiso/Conveyor/internal/flow"
)

// Sink получает завершённые flows (COMPLETED или TERMINATED).
type Sink interface {
	Finished(ctx context.Context, f *flow.TaskFlow) error
}

// SinkFunc — адаптер функции к Sink.
type SinkFunc func(ctx context.Context, f *flow.TaskFlow) error

func (fn SinkFunc) Finished(ctx context.Context, f *flow.TaskFlow) error { return fn(ctx, f) }
