package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxWait     = 100 * time.Millisecond
	defaultSinkTimeout = 10 * time.Second
)

// Source выдаёт flows воркеру и принимает их обратно.
//
// Реализация: queue.Manager.
type Source interface {
	Next(ctx context.Context, key domain.WorkKey, maxWait time.Duration) (*flow.TaskFlow, error)
	RouteBack(f *flow.TaskFlow) error
}

// Worker продвигает flows одного раздела очередей.
type Worker struct {
	name       string
	key        domain.WorkKey
	queues     Source
	dispatcher flow.Dispatcher
	sinks      []Sink

	maxWait     time.Duration
	sinkTimeout time.Duration

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Config — конфигурация Worker.
type Config struct {
	// Name — имя воркера в логах. Default: имя WorkKey.
	Name string

	// Key — раздел очередей, который обслуживает воркер.
	Key domain.WorkKey

	// Queues — источник flows.
	Queues Source

	// Dispatcher — отправка команд (connector.Registry).
	Dispatcher flow.Dispatcher

	// Sinks — приёмники завершённых flows.
	Sinks []Sink

	MaxWait     time.Duration // период перепроверки очередей (default: 100ms)
	SinkTimeout time.Duration // таймаут одного Sink (default: 10s)

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	name := cfg.Name
	if name == "" {
		name = cfg.Key.Name()
	}

	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	sinkTimeout := cfg.SinkTimeout
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithWorkKey(logger, cfg.Key.Name()).With("worker", name)

	return &Worker{
		name:        name,
		key:         cfg.Key,
		queues:      cfg.Queues,
		dispatcher:  cfg.Dispatcher,
		sinks:       cfg.Sinks,
		maxWait:     maxWait,
		sinkTimeout: sinkTimeout,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// Name возвращает имя воркера.
func (w *Worker) Name() string { return w.name }

// Key возвращает раздел очередей воркера.
func (w *Worker) Key() domain.WorkKey { return w.key }

// Run крутит цикл до отмены ctx. При отмене возвращает nil.
// Отмена прерывает только ожидание: начатый шаг flow доводится до конца.
func (w *Worker) Run(ctx context.Context) error {
	if w.queues == nil {
		return ErrNoQueues
	}

	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")

	for ctx.Err() == nil {
		f, err := w.queues.Next(ctx, w.key, w.maxWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("failed to take flow", "error", err)
			continue
		}
		w.Process(context.WithoutCancel(ctx), f)
	}
	return nil
}

// Process выполняет один шаг flow и решает его дальнейшую судьбу.
func (w *Worker) Process(ctx context.Context, f *flow.TaskFlow) {
	logger := telemetry.WithRecordID(telemetry.WithFlowID(w.logger, f.ID().String()), f.Record().ID())
	ctx = telemetry.WithLogger(ctx, logger)

	before := f.Status()
	err := w.advance(ctx, f)
	w.metrics.ObserveStep(f.Status().String())

	if err != nil {
		switch {
		case errors.Is(err, flow.ErrFlowFinished):
			logger.Warn("flow already finished", "status", f.Status())
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			logger.Debug("step interrupted", "error", err)
		default:
			logger.Warn("flow step failed",
				"from", before,
				"to", f.Status(),
				"attempts", f.Attempts(),
				"error", err,
			)
		}
	} else {
		logger.Debug("flow advanced", "from", before, "to", f.Status())
	}

	if !f.Status().IsTerminal() {
		if err := w.queues.RouteBack(f); err != nil {
			logger.Error("failed to route flow back", "status", f.Status(), "error", err)
			f.Abort(err)
		} else {
			return
		}
	}

	w.finish(ctx, f)
}

// advance выполняет Advance, превращая панику в TERMINATED.
func (w *Worker) advance(ctx context.Context, f *flow.TaskFlow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.IncWorkerPanic()
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			f.Abort(err)
		}
	}()
	return f.Advance(ctx, w.dispatcher)
}

// finish передаёт завершённый flow ResultHandler и всем Sinks.
func (w *Worker) finish(ctx context.Context, f *flow.TaskFlow) {
	logger := telemetry.FromContext(ctx)

	// Итоги доставляются и при остановке воркера
	ctx = context.WithoutCancel(ctx)

	specName := ""
	if spec := f.Spec(); spec != nil {
		specName = spec.Name
		if f.Status() == domain.FlowStatusCompleted && spec.ResultHandler != nil {
			err := w.safeCall(func() error {
				return spec.ResultHandler.HandleResult(ctx, f.Record(), f.Results())
			})
			if err != nil {
				logger.Error("result handler failed", "error", err)
			}
		}
	}
	w.metrics.ObserveFinished(specName, f.Status().String())

	attrs := []any{
		"status", f.Status(),
		"spec", specName,
		"steps", f.Steps(),
		"attempts", f.Attempts(),
		"elapsed", f.Elapsed(),
	}
	if f.Err() != nil {
		attrs = append(attrs, "error", f.Err())
	}
	logger.Info("flow finished", attrs...)

	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := w.safeCall(func() error { return sink.Finished(sinkCtx, f) })
		cancel()
		if err != nil {
			logger.Error("sink failed", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
}

func (w *Worker) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.IncWorkerPanic()
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
