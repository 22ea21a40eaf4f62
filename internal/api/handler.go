package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// Submitter принимает заявки на запуск flows.
//
// Реализация: intake.Intake.
type Submitter interface {
	Submit(ctx context.Context, req intake.SubmitRequest) (*flow.TaskFlow, error)
}

// QueueStats отдаёт снимок очередей.
//
// Реализация: queue.Manager.
type QueueStats interface {
	Stats() []queue.Stats
}

// Outcomes — чтение журнала завершённых flows.
//
// Реализация: repo.OutcomeRepo.
type Outcomes interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repo.Outcome, error)
	ListRecent(ctx context.Context, filter repo.OutcomeFilter) ([]repo.Outcome, error)
}

// Schedules — управление расписаниями.
//
// Реализация: scheduler.Scheduler.
type Schedules interface {
	Entries() []scheduler.EntryInfo
	Fire(ctx context.Context, name string) (*flow.TaskFlow, error)
}

// Connectors — сведения о коннекторах.
//
// Реализация: connector.Registry.
type Connectors interface {
	Types() []string
	Len() int
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	intake     Submitter
	catalog    *flow.Catalog
	queues     QueueStats
	connectors Connectors
	outcomes   Outcomes
	schedules  Schedules
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
// Outcomes и Schedules могут быть nil.
type Config struct {
	Intake     Submitter
	Catalog    *flow.Catalog
	Queues     QueueStats
	Connectors Connectors
	Outcomes   Outcomes
	Schedules  Schedules
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		intake:     cfg.Intake,
		catalog:    cfg.Catalog,
		queues:     cfg.Queues,
		connectors: cfg.Connectors,
		outcomes:   cfg.Outcomes,
		schedules:  cfg.Schedules,
		logger:     logger,
	}
}
