package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

var testKey = domain.NewWorkKey(domain.RoleFollower, domain.PhaseHandle)

type okDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *okDispatcher) Dispatch(context.Context, string, *domain.Record) (domain.Result, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return domain.Result{Category: domain.ResultSuccess, Code: 0, Message: "ok"}, nil
}

// collectSink складывает завершённые flows в канал.
type collectSink struct {
	ch chan *flow.TaskFlow
}

func newCollectSink() *collectSink {
	return &collectSink{ch: make(chan *flow.TaskFlow, 16)}
}

func (s *collectSink) Finished(_ context.Context, f *flow.TaskFlow) error {
	s.ch <- f
	return nil
}

func (s *collectSink) wait(t *testing.T) *flow.TaskFlow {
	t.Helper()
	select {
	case f := <-s.ch:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for finished flow")
		return nil
	}
}

func testRecord(content string) *domain.Record {
	identity := domain.NewIdentity(
		domain.Account{Username: "ops"},
		domain.Address{Host: "10.2.0.1", Port: "22"},
		domain.Terminal{Name: "edge", Version: "1"},
		domain.Protocol{Category: domain.ProtocolTCP, Name: "ssh", Version: "2"},
	)
	return domain.NewRecord(identity, domain.NewCommand(domain.CommandShellScript, content, nil))
}

func newManager(t *testing.T) *queue.Manager {
	t.Helper()
	m := queue.NewManager(queue.ManagerConfig{Logger: telemetry.NopLogger()})
	if err := m.Register(queue.New(queue.Config{Key: testKey})); err != nil {
		t.Fatalf("register queue: %v", err)
	}
	return m
}

func runWorker(t *testing.T, w *Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("worker did not stop")
		}
	}
}

func TestWorker_CompletesFlow(t *testing.T) {
	m := newManager(t)
	sink := newCollectSink()
	dispatcher := &okDispatcher{}

	var gotResults []domain.Result
	spec := &flow.Spec{
		Name:         "ping",
		Connector:    "echo",
		PreHandlers:  []flow.Handler{flow.RequireContent()},
		PostHandlers: []flow.Handler{flow.RequireSuccess()},
		ResultHandler: flow.ResultHandlerFunc(func(_ context.Context, _ *domain.Record, results []domain.Result) error {
			gotResults = results
			return nil
		}),
	}

	w := New(Config{
		Key:        testKey,
		Queues:     m,
		Dispatcher: dispatcher,
		Sinks:      []Sink{sink},
		MaxWait:    10 * time.Millisecond,
		Logger:     telemetry.NopLogger(),
	})
	stop := runWorker(t, w)
	defer stop()

	if err := m.Put(testKey, flow.New(testRecord("uptime"), spec)); err != nil {
		t.Fatalf("put: %v", err)
	}

	f := sink.wait(t)
	if f.Status() != domain.FlowStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (err %v)", f.Status(), f.Err())
	}
	if f.Steps() != 3 {
		t.Errorf("expected 3 steps, got %d", f.Steps())
	}
	if len(gotResults) != 1 || gotResults[0].Category != domain.ResultSuccess {
		t.Errorf("result handler should receive dispatch results, got %+v", gotResults)
	}
	if dispatcher.calls != 1 {
		t.Errorf("expected 1 dispatch, got %d", dispatcher.calls)
	}
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	m := newManager(t)
	sink := newCollectSink()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	panicky := &flow.Spec{
		Name:      "panicky",
		Connector: "echo",
		PreHandlers: []flow.Handler{flow.HandlerFunc(func(context.Context, *domain.Record, *domain.Result) error {
			panic("handler exploded")
		})},
	}
	healthy := &flow.Spec{Name: "healthy", Connector: "echo"}

	w := New(Config{
		Key:        testKey,
		Queues:     m,
		Dispatcher: &okDispatcher{},
		Sinks:      []Sink{sink},
		MaxWait:    10 * time.Millisecond,
		Logger:     telemetry.NopLogger(),
		Metrics:    metrics,
	})
	stop := runWorker(t, w)
	defer stop()

	_ = m.Put(testKey, flow.New(testRecord("a"), panicky))
	f := sink.wait(t)
	if f.Status() != domain.FlowStatusTerminated {
		t.Fatalf("expected TERMINATED, got %s", f.Status())
	}
	if !errors.Is(f.Err(), ErrPanic) {
		t.Errorf("expected ErrPanic, got %v", f.Err())
	}
	if got := testutil.ToFloat64(metrics.WorkerPanics); got != 1 {
		t.Errorf("expected 1 panic metric, got %v", got)
	}

	// Цикл продолжает работу после паники
	_ = m.Put(testKey, flow.New(testRecord("b"), healthy))
	if f := sink.wait(t); f.Status() != domain.FlowStatusCompleted {
		t.Errorf("next flow should complete, got %s", f.Status())
	}
}

func TestWorker_FailureDoesNotCallResultHandler(t *testing.T) {
	m := newManager(t)
	sink := newCollectSink()

	called := false
	spec := &flow.Spec{
		Name:        "guarded",
		Connector:   "echo",
		PreHandlers: []flow.Handler{flow.RequireContent()},
		ResultHandler: flow.ResultHandlerFunc(func(context.Context, *domain.Record, []domain.Result) error {
			called = true
			return nil
		}),
	}

	w := New(Config{Key: testKey, Queues: m, Dispatcher: &okDispatcher{}, Sinks: []Sink{sink}, Logger: telemetry.NopLogger()})
	stop := runWorker(t, w)
	defer stop()

	_ = m.Put(testKey, flow.New(testRecord(""), spec))
	f := sink.wait(t)
	if !errors.Is(f.Err(), flow.ErrHandlerFailure) {
		t.Errorf("expected handler failure, got %v", f.Err())
	}
	if called {
		t.Error("result handler must not run for TERMINATED flow")
	}
}

// brokenSource не принимает flows обратно.
type brokenSource struct{}

func (brokenSource) Next(ctx context.Context, _ domain.WorkKey, _ time.Duration) (*flow.TaskFlow, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (brokenSource) RouteBack(*flow.TaskFlow) error {
	return queue.ErrQueueFull
}

func TestWorker_RouteBackFailureAbortsFlow(t *testing.T) {
	sink := newCollectSink()
	w := New(Config{Key: testKey, Queues: brokenSource{}, Sinks: []Sink{sink}, Logger: telemetry.NopLogger()})

	f := flow.New(testRecord("x"), &flow.Spec{Name: "s", Connector: "echo"})
	w.Process(context.Background(), f)

	got := sink.wait(t)
	if got.Status() != domain.FlowStatusTerminated {
		t.Fatalf("expected TERMINATED, got %s", got.Status())
	}
	if !errors.Is(got.Err(), flow.ErrAborted) || !errors.Is(got.Err(), queue.ErrQueueFull) {
		t.Errorf("expected aborted with queue full cause, got %v", got.Err())
	}
}

func TestWorker_SinkErrorsAreIsolated(t *testing.T) {
	second := newCollectSink()
	failing := SinkFunc(func(context.Context, *flow.TaskFlow) error {
		return errors.New("journal unavailable")
	})
	w := New(Config{Key: testKey, Queues: brokenSource{}, Sinks: []Sink{failing, second}, Logger: telemetry.NopLogger()})

	f := flow.New(testRecord("x"), &flow.Spec{Name: "s", Connector: "echo"})
	f.Abort(nil)
	w.Process(context.Background(), f)

	if got := second.wait(t); got != f {
		t.Error("second sink should still receive flow")
	}
}

func TestWorker_RunRequiresQueues(t *testing.T) {
	w := New(Config{Key: testKey})
	if err := w.Run(context.Background()); !errors.Is(err, ErrNoQueues) {
		t.Errorf("expected ErrNoQueues, got %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	m := queue.NewManager(queue.ManagerConfig{Logger: telemetry.NopLogger()})
	execKey := domain.NewWorkKey(domain.RoleLeader, domain.PhaseExecute)
	_ = m.Register(queue.New(queue.Config{Key: testKey}))
	_ = m.Register(queue.New(queue.Config{Key: execKey}))

	sink := newCollectSink()
	pool := NewPool(PoolConfig{
		Assignments: []Assignment{{Key: testKey, Count: 2}, {Key: execKey, Count: 1}},
		Queues:      m,
		Dispatcher:  &okDispatcher{},
		Sinks:       []Sink{sink},
		MaxWait:     10 * time.Millisecond,
		Logger:      telemetry.NopLogger(),
	})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := pool.Start(context.Background()); !errors.Is(err, ErrPoolStarted) {
		t.Errorf("expected ErrPoolStarted, got %v", err)
	}
	if pool.Size() != 3 {
		t.Errorf("expected 3 workers, got %d", pool.Size())
	}

	spec := &flow.Spec{Name: "s", Connector: "echo"}
	for i := 0; i < 5; i++ {
		_ = m.Put(testKey, flow.New(testRecord("x"), spec))
	}
	_ = m.Put(execKey, flow.New(testRecord("y"), spec))

	for i := 0; i < 6; i++ {
		if f := sink.wait(t); f.Status() != domain.FlowStatusCompleted {
			t.Errorf("expected COMPLETED, got %s", f.Status())
		}
	}

	if err := pool.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Errorf("second stop should be no-op, got %v", err)
	}
}

func TestPool_NoAssignments(t *testing.T) {
	pool := NewPool(PoolConfig{Queues: newManager(t), Logger: telemetry.NopLogger()})
	if err := pool.Start(context.Background()); !errors.Is(err, ErrNoAssignments) {
		t.Errorf("expected ErrNoAssignments, got %v", err)
	}
}

// gateDispatcher держит Dispatch до release и не смотрит на ctx.
type gateDispatcher struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (d *gateDispatcher) Dispatch(ctx context.Context, _ string, _ *domain.Record) (domain.Result, error) {
	close(d.started)
	<-d.release
	d.ctxErr <- ctx.Err()
	return domain.Result{Category: domain.ResultSuccess, Message: "ok"}, nil
}

func TestPool_StopFinishesInFlightStep(t *testing.T) {
	m := newManager(t)
	sink := newCollectSink()
	d := &gateDispatcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	pool := NewPool(PoolConfig{
		Assignments: []Assignment{{Key: testKey, Count: 1}},
		Queues:      m,
		Dispatcher:  d,
		Sinks:       []Sink{sink},
		MaxWait:     10 * time.Millisecond,
		Logger:      telemetry.NopLogger(),
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Put(testKey, flow.New(testRecord("x"), &flow.Spec{Name: "s", Connector: "echo"})); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case <-d.started:
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch did not start")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a step was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(d.release)

	if err := <-d.ctxErr; err != nil {
		t.Errorf("dispatch ctx was cancelled by Stop: %v", err)
	}
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not stop")
	}

	// Шаг EXECUTING завершился успешно, но до COMPLETED flow уже не дошёл
	select {
	case f := <-sink.ch:
		t.Errorf("flow should stay queued after stop, got %s", f.Status())
	default:
	}
	for _, r := range m.Stats() {
		if r.Length != 1 {
			t.Errorf("queue %s length = %d, want 1", r.Name, r.Length)
		}
	}
}
