package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Assignment — сколько воркеров обслуживают раздел.
type Assignment struct {
	Key   domain.WorkKey
	Count int
}

// PoolConfig — конфигурация Pool.
type PoolConfig struct {
	Assignments []Assignment
	Queues      Source
	Dispatcher  flow.Dispatcher
	Sinks       []Sink

	MaxWait     time.Duration
	SinkTimeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Pool — группа воркеров с общим жизненным циклом.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu      sync.Mutex
	workers []*Worker
	cancel  context.CancelFunc
	done    chan error
}

// NewPool создаёт пул. Воркеры создаются в Start.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{cfg: cfg, logger: logger}
}

// Start запускает воркеров и возвращается сразу.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrPoolStarted
	}
	if p.cfg.Queues == nil {
		return ErrNoQueues
	}

	var workers []*Worker
	for _, a := range p.cfg.Assignments {
		for i := 0; i < a.Count; i++ {
			workers = append(workers, New(Config{
				Name:        fmt.Sprintf("%s#%d", a.Key.Name(), i),
				Key:         a.Key,
				Queues:      p.cfg.Queues,
				Dispatcher:  p.cfg.Dispatcher,
				Sinks:       p.cfg.Sinks,
				MaxWait:     p.cfg.MaxWait,
				SinkTimeout: p.cfg.SinkTimeout,
				Logger:      p.logger,
				Metrics:     p.cfg.Metrics,
			}))
		}
	}
	if len(workers) == 0 {
		return ErrNoAssignments
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return w.Run(gctx) })
	}

	p.workers = workers
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- g.Wait() }()

	p.logger.Info("worker pool started", "workers", len(workers))
	return nil
}

// Stop останавливает воркеров и ждёт их завершения.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.workers = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}

	p.logger.Info("stopping worker pool...")
	cancel()
	err := <-done
	p.logger.Info("worker pool stopped")
	return err
}

// Size возвращает число запущенных воркеров.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
