package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
)

// ErrUnknownEntry — запись с таким именем не зарегистрирована.
var ErrUnknownEntry = errors.New("unknown schedule entry")

// Entry — периодическая заявка.
type Entry struct {
	Name    string
	Cron    string
	Request intake.SubmitRequest
}

// EntryInfo — состояние записи для API и логов.
type EntryInfo struct {
	Name string    `json:"name"`
	Cron string    `json:"cron"`
	Flow string    `json:"flow"`
	Next time.Time `json:"next,omitempty"`
	Prev time.Time `json:"prev,omitempty"`
}

// Submitter принимает заявки.
//
// Реализация: intake.Intake.
type Submitter interface {
	Submit(ctx context.Context, req intake.SubmitRequest) (*flow.TaskFlow, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Entries []Entry
	Intake  Submitter

	// Location — часовой пояс cron-выражений. Default: UTC.
	Location *time.Location

	Logger *slog.Logger
}

// Scheduler подаёт заявки по расписанию.
type Scheduler struct {
	cron    *cron.Cron
	intake  Submitter
	entries map[string]scheduled
	order   []string
	loc     *time.Location
	logger  *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

type scheduled struct {
	entry Entry
	id    cron.EntryID
}

// New создаёт Scheduler и регистрирует записи.
// Невалидное cron-выражение или повтор имени — ошибка.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	clog := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog)),
		),
		intake:  cfg.Intake,
		entries: make(map[string]scheduled, len(cfg.Entries)),
		loc:     loc,
		logger:  logger,
		ctx:     context.Background(),
	}

	for _, e := range cfg.Entries {
		if _, ok := s.entries[e.Name]; ok {
			return nil, fmt.Errorf("duplicate schedule %q", e.Name)
		}
		if err := ValidateCronExpr(e.Cron); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", e.Name, err)
		}

		entry := e
		id, err := s.cron.AddFunc(entry.Cron, func() { s.fire(s.runContext(), entry) })
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", e.Name, err)
		}
		s.entries[e.Name] = scheduled{entry: entry, id: id}
		s.order = append(s.order, e.Name)
	}

	return s, nil
}

// Start запускает срабатывания. Заявки подаются с контекстом ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.entries))
}

// Stop останавливает срабатывания и ждёт завершения текущих заявок.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// Fire немедленно подаёт заявку записи name.
func (s *Scheduler) Fire(ctx context.Context, name string) (*flow.TaskFlow, error) {
	sc, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return s.submit(ctx, sc.entry)
}

// Entries возвращает состояние записей в порядке регистрации.
// До Start время следующего запуска вычисляется по cron-выражению.
func (s *Scheduler) Entries() []EntryInfo {
	now := time.Now()
	infos := make([]EntryInfo, 0, len(s.order))
	for _, name := range s.order {
		sc := s.entries[name]
		ce := s.cron.Entry(sc.id)
		info := EntryInfo{
			Name: name,
			Cron: sc.entry.Cron,
			Flow: sc.entry.Request.Flow,
			Next: ce.Next,
			Prev: ce.Prev,
		}
		if info.Next.IsZero() {
			if next, err := NextRun(sc.entry.Cron, now, s.loc); err == nil {
				info.Next = next
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// fire — срабатывание cron: ошибка только логируется.
func (s *Scheduler) fire(ctx context.Context, entry Entry) {
	if _, err := s.submit(ctx, entry); err != nil {
		s.logger.Error("scheduled submission failed",
			"schedule", entry.Name,
			"flow", entry.Request.Flow,
			"error", err,
		)
	}
}

func (s *Scheduler) submit(ctx context.Context, entry Entry) (*flow.TaskFlow, error) {
	req := entry.Request
	req.Source = intake.SourceSchedule

	f, err := s.intake.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("scheduled flow submitted",
		"schedule", entry.Name,
		"flow_id", f.ID().String(),
	)
	return f, nil
}
