package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/connector"
	"github.com/shaiso/Conveyor/internal/domain"
)

// Dispatcher отправляет команду записи через коннектор указанного типа.
//
// Реализация: connector.Registry.
type Dispatcher interface {
	Dispatch(ctx context.Context, connectorType string, record *domain.Record) (domain.Result, error)
}

// TaskFlow — один экземпляр жизненного цикла задачи.
//
// TaskFlow не потокобезопасен: в каждый момент им владеет ровно один
// воркер, владение передаётся через очереди.
type TaskFlow struct {
	id     uuid.UUID
	record *domain.Record
	spec   *Spec

	status domain.FlowStatus
	pre    bool

	results   []domain.Result
	durations []time.Duration
	elapsed   time.Duration
	attempts  int
	err       error

	origin    domain.WorkKey
	hasOrigin bool

	createdAt  time.Time
	finishedAt time.Time

	now func() time.Time
}

// Option настраивает TaskFlow.
type Option func(*TaskFlow)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(f *TaskFlow) { f.now = now }
}

// WithID задаёт идентификатор flow.
func WithID(id uuid.UUID) Option {
	return func(f *TaskFlow) { f.id = id }
}

// New создаёт flow в статусе HANDLING с включённой pre-фазой.
func New(record *domain.Record, spec *Spec, opts ...Option) *TaskFlow {
	f := &TaskFlow{
		id:     uuid.New(),
		record: record,
		spec:   spec,
		status: domain.FlowStatusHandling,
		pre:    true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.createdAt = f.now()
	return f
}

func (f *TaskFlow) ID() uuid.UUID             { return f.id }
func (f *TaskFlow) Record() *domain.Record    { return f.record }
func (f *TaskFlow) Spec() *Spec               { return f.spec }
func (f *TaskFlow) Status() domain.FlowStatus { return f.status }

// IsPreHandling возвращает true, пока не пройдена pre-фаза.
func (f *TaskFlow) IsPreHandling() bool { return f.pre }

// Results возвращает копию накопленных результатов dispatch.
func (f *TaskFlow) Results() []domain.Result {
	out := make([]domain.Result, len(f.results))
	copy(out, f.results)
	return out
}

// LastResult возвращает последний результат dispatch.
func (f *TaskFlow) LastResult() (domain.Result, bool) {
	if len(f.results) == 0 {
		return domain.Result{}, false
	}
	return f.results[len(f.results)-1], true
}

// StepDurations возвращает копию длительностей выполненных шагов.
func (f *TaskFlow) StepDurations() []time.Duration {
	out := make([]time.Duration, len(f.durations))
	copy(out, f.durations)
	return out
}

// Steps возвращает число выполненных шагов.
func (f *TaskFlow) Steps() int { return len(f.durations) }

// Elapsed возвращает суммарное время шагов.
func (f *TaskFlow) Elapsed() time.Duration { return f.elapsed }

// Attempts возвращает число попыток dispatch.
func (f *TaskFlow) Attempts() int { return f.attempts }

// Err возвращает причину перехода в TERMINATED.
func (f *TaskFlow) Err() error { return f.err }

// CreatedAt возвращает время создания flow.
func (f *TaskFlow) CreatedAt() time.Time { return f.createdAt }

// FinishedAt возвращает время перехода в финальный статус.
func (f *TaskFlow) FinishedAt() time.Time { return f.finishedAt }

// Origin возвращает WorkKey, из раздела которого flow был взят последним.
func (f *TaskFlow) Origin() (domain.WorkKey, bool) { return f.origin, f.hasOrigin }

// SetOrigin запоминает WorkKey, из которого flow был взят.
// Вызывается менеджером очередей при выдаче flow воркеру.
func (f *TaskFlow) SetOrigin(key domain.WorkKey) {
	f.origin = key
	f.hasOrigin = true
}

// Advance выполняет ровно один переход состояния.
//
//	HANDLING(pre)  → EXECUTING | TERMINATED
//	EXECUTING      → HANDLING(post) | EXECUTING (retry) | TERMINATED
//	HANDLING(post) → COMPLETED | TERMINATED
//
// Для финального flow возвращает ErrFlowFinished и ничего не меняет.
// Отмена ctx проверяется до начала шага: flow остаётся как был.
func (f *TaskFlow) Advance(ctx context.Context, d Dispatcher) error {
	if f.status.IsTerminal() {
		return ErrFlowFinished
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.spec == nil {
		err := fmt.Errorf("%w: flow has no spec", ErrInvalidSpec)
		f.terminate(err)
		return err
	}

	// Лимит времени проверяется на границе фаз
	if f.spec.MaxTimeout > 0 && f.elapsed >= f.spec.MaxTimeout {
		err := fmt.Errorf("%w: elapsed %s, limit %s", ErrTimeout, f.elapsed, f.spec.MaxTimeout)
		f.terminate(err)
		return err
	}

	start := f.now()
	var err error
	switch f.status {
	case domain.FlowStatusHandling:
		if f.pre {
			err = f.handlePre(ctx)
		} else {
			err = f.handlePost(ctx)
		}
	case domain.FlowStatusExecuting:
		err = f.execute(ctx, d)
	}
	step := f.now().Sub(start)
	if step < 0 {
		step = 0
	}
	f.durations = append(f.durations, step)
	f.elapsed += step

	return err
}

// Abort переводит незавершённый flow в TERMINATED снаружи.
func (f *TaskFlow) Abort(reason error) {
	if f.status.IsTerminal() {
		return
	}
	if reason == nil {
		reason = ErrAborted
	} else if !errors.Is(reason, ErrAborted) {
		reason = fmt.Errorf("%w: %w", ErrAborted, reason)
	}
	f.terminate(reason)
}

// handlePre запускает pre-обработчики по порядку до первого отказа.
func (f *TaskFlow) handlePre(ctx context.Context) error {
	for i, h := range f.spec.PreHandlers {
		if err := h.Handle(ctx, f.record, nil); err != nil {
			herr := &HandlerError{Phase: PhasePre, Handler: handlerName(h), Index: i, Err: err}
			f.terminate(herr)
			return herr
		}
	}
	f.status = domain.FlowStatusExecuting
	f.pre = false
	return nil
}

// handlePost запускает post-обработчики с последним результатом.
func (f *TaskFlow) handlePost(ctx context.Context) error {
	var last *domain.Result
	if len(f.results) > 0 {
		r := f.results[len(f.results)-1]
		last = &r
	}
	for i, h := range f.spec.PostHandlers {
		if err := h.Handle(ctx, f.record, last); err != nil {
			herr := &HandlerError{Phase: PhasePost, Handler: handlerName(h), Index: i, Err: err}
			f.terminate(herr)
			return herr
		}
	}
	f.status = domain.FlowStatusCompleted
	f.finishedAt = f.now()
	return nil
}

// execute отправляет команду через коннектор.
//
// Ошибка коннектора (connector.ErrDispatch) записывается как ABNORMAL
// результат: пока попытки не исчерпаны, flow остаётся в EXECUTING,
// иначе переходит к post-обработке. Остальные ошибки (маршрутизация,
// неизвестный коннектор) завершают flow.
func (f *TaskFlow) execute(ctx context.Context, d Dispatcher) error {
	if d == nil {
		f.terminate(ErrNoDispatcher)
		return ErrNoDispatcher
	}

	dispatchCtx := ctx
	if f.spec.MaxTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, f.spec.MaxTimeout-f.elapsed)
		defer cancel()
	}

	f.attempts++
	result, err := d.Dispatch(dispatchCtx, f.spec.Connector, f.record)
	if err == nil {
		f.results = append(f.results, result)
		f.status = domain.FlowStatusHandling
		return nil
	}

	if !errors.Is(err, connector.ErrDispatch) {
		f.terminate(err)
		return err
	}

	if result.Category == "" {
		result = domain.Abnormal(err)
	}
	f.results = append(f.results, result)
	if f.attempts <= f.spec.MaxRetry {
		// Остаёмся в EXECUTING: следующий шаг — повторная попытка
		return err
	}
	f.status = domain.FlowStatusHandling
	return err
}

func (f *TaskFlow) terminate(err error) {
	f.status = domain.FlowStatusTerminated
	f.err = err
	f.finishedAt = f.now()
}
