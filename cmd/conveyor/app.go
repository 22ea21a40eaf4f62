package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/connector"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// app — собранные компоненты демона.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time

	registry   *prometheus.Registry
	metrics    *telemetry.Metrics
	connectors *connector.Registry
	catalog    *flow.Catalog
	queues     *queue.Manager
	intake     *intake.Intake
	sinks      []worker.Sink
	pool       *worker.Pool
	scheduler  *scheduler.Scheduler

	db       *pgxpool.Pool
	outcomes *repo.OutcomeRepo

	mqConn    *mq.Connection
	publisher *mq.Publisher
	consumer  *mq.Consumer

	server *http.Server
}

// newApp собирает компоненты. Внешние системы (PostgreSQL, RabbitMQ)
// подключаются только если включены в конфигурации.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		registry:  prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = telemetry.NewMetrics(a.registry)

	a.connectors = connector.NewRegistry(connector.Config{
		Logger:  logger.With("component", "connectors"),
		Metrics: a.metrics,
	})
	a.connectors.Register(connector.HTTPType, connector.HTTPFactory(nil, cfg.ConnectorTimeout()))

	catalog, err := cfg.Catalog(flow.DefaultHandlers())
	if err != nil {
		return nil, fmt.Errorf("build flow catalog: %w", err)
	}
	a.catalog = catalog
	for _, name := range catalog.Names() {
		spec, _ := catalog.Get(name)
		if !a.connectors.Has(spec.Connector) {
			return nil, fmt.Errorf("flow %q: %w: %s", name, connector.ErrUnknownConnector, spec.Connector)
		}
	}

	if err := a.buildQueues(); err != nil {
		return nil, err
	}

	defaultKey, err := domain.ParseWorkKey(cfg.Engine.DefaultWorkKey)
	if err != nil {
		return nil, err
	}
	a.intake = intake.New(intake.Config{
		Catalog:    a.catalog,
		Queues:     a.queues,
		DefaultKey: defaultKey,
		Logger:     logger.With("component", "intake"),
		Metrics:    a.metrics,
	})

	if err := a.connectDatabase(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.connectRabbitMQ(ctx); err != nil {
		a.close()
		return nil, err
	}

	if err := a.buildScheduler(); err != nil {
		a.close()
		return nil, err
	}

	a.buildServer()
	return a, nil
}

// buildQueues регистрирует очереди из конфигурации.
func (a *app) buildQueues() error {
	var router queue.Router = queue.OriginRouter{}
	if a.cfg.Engine.Router == config.RouterPhase {
		router = queue.PhaseRouter{}
	}

	a.queues = queue.NewManager(queue.ManagerConfig{
		Logger:  a.logger.With("component", "queues"),
		Metrics: a.metrics,
		Router:  router,
	})

	for _, qc := range a.cfg.Queues {
		key, err := domain.ParseWorkKey(qc.WorkKey)
		if err != nil {
			return err
		}

		var gate queue.Gate
		if qc.RateLimited {
			gate = queue.NewRateGate(time.Duration(qc.RateIntervalMS) * time.Millisecond)
		}

		q := queue.New(queue.Config{
			Name:     qc.Name,
			Key:      key,
			Weight:   qc.Weight,
			Capacity: qc.Capacity,
			Gate:     gate,
		})
		if err := a.queues.Register(q); err != nil {
			return fmt.Errorf("register queue %s: %w", qc.Name, err)
		}
	}
	return nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	if !a.cfg.Database.Enabled {
		return nil
	}

	pool, err := repo.NewPool(ctx, a.cfg.Database.URL, repo.WithMaxConns(a.cfg.Database.MaxConns))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = pool
	a.outcomes = repo.NewOutcomeRepo(pool)

	if err := a.outcomes.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure outcome schema: %w", err)
	}
	a.sinks = append(a.sinks, a.outcomes)
	a.logger.Info("connected to database")
	return nil
}

func (a *app) connectRabbitMQ(ctx context.Context) error {
	if !a.cfg.RabbitMQ.Enabled {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout())
	defer cancel()

	conn, err := mq.NewConnection(dialCtx, a.cfg.RabbitMQ.URL, a.logger.With("component", "mq"))
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	a.mqConn = conn

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}
	a.logger.Debug("rabbitmq topology declared", "topology", mq.TopologyInfo())

	if a.cfg.RabbitMQ.PublishFinished {
		a.publisher = mq.NewPublisher(conn, a.logger.With("component", "publisher"))
		a.sinks = append(a.sinks, a.publisher)
	}
	if a.cfg.RabbitMQ.ConsumeSubmit {
		a.consumer = mq.NewConsumer(conn, a.logger.With("component", "consumer"), mq.ConsumerConfig{
			Queue:    mq.QueueFlowsSubmit,
			Types:    []mq.MessageType{mq.MessageTypeFlowSubmit},
			Handler:  a.intake.HandleDelivery,
			Prefetch: a.cfg.RabbitMQ.Prefetch,
		})
	}
	a.logger.Info("connected to rabbitmq")
	return nil
}

func (a *app) buildScheduler() error {
	if len(a.cfg.Schedules) == 0 {
		return nil
	}

	entries := make([]scheduler.Entry, 0, len(a.cfg.Schedules))
	for _, s := range a.cfg.Schedules {
		entries = append(entries, scheduler.Entry{
			Name:    s.Name,
			Cron:    s.Cron,
			Request: s.Request(),
		})
	}

	s, err := scheduler.New(scheduler.Config{
		Entries: entries,
		Intake:  a.intake,
		Logger:  a.logger.With("component", "scheduler"),
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	a.scheduler = s
	return nil
}

func (a *app) buildServer() {
	handlerCfg := api.Config{
		Intake:     a.intake,
		Catalog:    a.catalog,
		Queues:     a.queues,
		Connectors: a.connectors,
		Logger:     a.logger.With("component", "api"),
	}
	if a.outcomes != nil {
		handlerCfg.Outcomes = a.outcomes
	}
	if a.scheduler != nil {
		handlerCfg.Schedules = a.scheduler
	}

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", a.healthz)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	// Регистрируем API маршруты
	api.NewHandler(handlerCfg).RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}
}

// healthz отвечает 503, если включённый PostgreSQL или RabbitMQ недоступен.
func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var problems []string
	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			problems = append(problems, "database: "+err.Error())
		}
	}
	if a.mqConn != nil && !a.mqConn.IsConnected() {
		problems = append(problems, "rabbitmq: disconnected")
	}

	if len(problems) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "unhealthy: %s", strings.Join(problems, "; "))
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %s", time.Since(a.startedAt).Round(time.Second))
}

// startWorkers запускает пул воркеров по разделам из конфигурации.
// Пул не наследует отмену ctx: его останавливает только shutdown через pool.Stop.
func (a *app) startWorkers(ctx context.Context) error {
	assignments := make([]worker.Assignment, 0, len(a.cfg.Workers))
	for _, w := range a.cfg.Workers {
		key, err := domain.ParseWorkKey(w.WorkKey)
		if err != nil {
			return err
		}
		assignments = append(assignments, worker.Assignment{Key: key, Count: w.Count})
	}

	a.pool = worker.NewPool(worker.PoolConfig{
		Assignments: assignments,
		Queues:      a.queues,
		Dispatcher:  a.connectors,
		Sinks:       a.sinks,
		MaxWait:     a.cfg.MaxWait(),
		SinkTimeout: a.cfg.SinkTimeout(),
		Logger:      a.logger.With("component", "workers"),
		Metrics:     a.metrics,
	})
	return a.pool.Start(context.WithoutCancel(ctx))
}

// run запускает воркеров, расписания, consumer и HTTP сервер
// и ждёт отмены ctx. Затем останавливает всё в обратном порядке.
func (a *app) run(ctx context.Context) error {
	if err := a.startWorkers(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown сначала перестаёт принимать заявки, затем дожидается воркеров.
func (a *app) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	if a.consumer != nil {
		a.consumer.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.pool != nil {
		if err := a.pool.Stop(); err != nil {
			a.logger.Error("worker pool stop error", "error", err)
		}
	}
}

// close освобождает соединения. Безопасен для частично собранного app.
func (a *app) close() {
	if a.connectors != nil {
		if err := a.connectors.Close(); err != nil {
			a.logger.Error("close connectors", "error", err)
		}
	}
	if a.mqConn != nil {
		if err := a.mqConn.Close(); err != nil {
			a.logger.Error("close rabbitmq", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
