package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Источники заявок.
const (
	SourceAPI      = "api"
	SourceAMQP     = "amqp"
	SourceSchedule = "schedule"
)

// Queues принимает новые flows.
//
// Реализация: queue.Manager.
type Queues interface {
	Put(key domain.WorkKey, f *flow.TaskFlow) error
}

// Config — конфигурация Intake.
type Config struct {
	Catalog *flow.Catalog
	Queues  Queues

	// DefaultKey — раздел для заявок без work_key.
	// Default: Follower:HANDLE.
	DefaultKey domain.WorkKey

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Intake принимает заявки и ставит flows в очереди.
type Intake struct {
	catalog    *flow.Catalog
	queues     Queues
	defaultKey domain.WorkKey
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// New создаёт Intake.
func New(cfg Config) *Intake {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := cfg.DefaultKey
	if key == (domain.WorkKey{}) {
		key = domain.NewWorkKey(domain.RoleFollower, domain.PhaseHandle)
	}
	return &Intake{
		catalog:    cfg.Catalog,
		queues:     cfg.Queues,
		defaultKey: key,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// DefaultKey возвращает раздел по умолчанию.
func (i *Intake) DefaultKey() domain.WorkKey { return i.defaultKey }

// Submit проверяет заявку, создаёт flow и ставит его в очередь.
func (i *Intake) Submit(ctx context.Context, req SubmitRequest) (*flow.TaskFlow, error) {
	source := req.Source
	if source == "" {
		source = SourceAPI
	}

	f, err := i.submit(ctx, req)
	i.metrics.ObserveSubmission(source, outcome(err))
	if err != nil {
		i.logger.Warn("submission rejected",
			"source", source,
			"flow", req.Flow,
			"error", err,
		)
		return nil, err
	}

	i.logger.Info("flow submitted",
		"source", source,
		"flow", req.Flow,
		"flow_id", f.ID().String(),
		"record_id", f.Record().ID(),
	)
	return f, nil
}

func (i *Intake) submit(ctx context.Context, req SubmitRequest) (*flow.TaskFlow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := i.defaultKey
	if req.WorkKey != "" {
		// Формат уже проверен в Validate
		key, _ = domain.ParseWorkKey(req.WorkKey)
	}

	spec, err := i.catalog.Get(req.Flow)
	if err != nil {
		return nil, err
	}

	f := flow.New(req.Record(), spec)
	if err := i.queues.Put(key, f); err != nil {
		return nil, fmt.Errorf("enqueue flow: %w", err)
	}
	return f, nil
}

// HandleDelivery — обработчик сообщений очереди flows.submit.
//
// Некорректная заявка или неизвестный flow уходят в DLQ (mq.Reject).
// Остальные ошибки (переполнение очередей) возвращают сообщение в RabbitMQ.
func (i *Intake) HandleDelivery(ctx context.Context, msg *mq.Delivery) error {
	req, err := mq.ParsePayload[SubmitRequest](&msg.Message)
	if err != nil {
		i.metrics.ObserveSubmission(SourceAMQP, "malformed")
		return mq.Reject(fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	req.Source = SourceAMQP

	_, err = i.Submit(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownSpec):
		return mq.Reject(err)
	default:
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrUnknownSpec):
		return "unknown_flow"
	case errors.Is(err, queue.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, queue.ErrNoRoute):
		return "no_route"
	default:
		return "error"
	}
}
