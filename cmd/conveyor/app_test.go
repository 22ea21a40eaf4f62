package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

const testConfig = `
[engine]
max_wait_ms = 20

[[flows]]
name = "ping"
pre = ["require_content"]
post = ["require_success"]
`

func TestApp_FlowRunsEndToEnd(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("split host: %v", err)
	}

	cfg, err := config.Parse(testConfig)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	finished := make(chan *flow.TaskFlow, 1)
	a.sinks = append(a.sinks, worker.SinkFunc(func(_ context.Context, f *flow.TaskFlow) error {
		finished <- f
		return nil
	}))

	if err := a.startWorkers(ctx); err != nil {
		t.Fatalf("startWorkers: %v", err)
	}
	defer a.pool.Stop()

	_, err = a.intake.Submit(ctx, intake.SubmitRequest{
		Flow:     "ping",
		Identity: intake.IdentityRequest{Host: host, Port: port, Protocol: "http"},
		Command:  intake.CommandRequest{Content: "hello"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case body := <-received:
		if body != "hello" {
			t.Errorf("connector sent %q, want hello", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connector was not called")
	}

	select {
	case f := <-finished:
		if f.Status() != domain.FlowStatusCompleted {
			t.Errorf("status = %s, want COMPLETED (err %v)", f.Status(), f.Err())
		}
		if f.Attempts() != 1 {
			t.Errorf("attempts = %d, want 1", f.Attempts())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("flow did not finish")
	}

	if a.connectors.Len() != 1 {
		t.Errorf("connectors = %d, want 1", a.connectors.Len())
	}
}

func TestApp_ShutdownLetsInFlightDispatchFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("split host: %v", err)
	}

	cfg, err := config.Parse(testConfig + `
[http]
addr = "127.0.0.1:0"
`)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	a, err := newApp(context.Background(), cfg, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	var mu sync.Mutex
	var finished []*flow.TaskFlow
	a.sinks = append(a.sinks, worker.SinkFunc(func(_ context.Context, f *flow.TaskFlow) error {
		mu.Lock()
		finished = append(finished, f)
		mu.Unlock()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.run(ctx) }()

	submitted, err := a.intake.Submit(ctx, intake.SubmitRequest{
		Flow:     "ping",
		Identity: intake.IdentityRequest{Host: host, Port: port, Protocol: "http"},
		Command:  intake.CommandRequest{Content: "hello"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("connector was not called")
	}

	// Сигнал остановки приходит посреди dispatch
	cancel()
	select {
	case err := <-runErr:
		t.Fatalf("run returned before in-flight dispatch finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after shutdown")
	}

	if submitted.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", submitted.Attempts())
	}
	for _, r := range submitted.Results() {
		if r.Category == domain.ResultAbnormal {
			t.Errorf("dispatch was interrupted by shutdown: %+v", r)
		}
	}
	if submitted.Status() == domain.FlowStatusTerminated {
		t.Errorf("flow terminated by shutdown: %v", submitted.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	for _, f := range finished {
		if f.Status() != domain.FlowStatusCompleted {
			t.Errorf("finished flow status = %s, want COMPLETED", f.Status())
		}
	}
}

func TestApp_PhaseRouterAndRateGate(t *testing.T) {
	cfg, err := config.Parse(`
[engine]
router = "phase"

[[queues]]
work_key = "Follower:HANDLE"

[[queues]]
name = "slow"
work_key = "Follower:HANDLE"
weight = 5
rate_limited = true

[[queues]]
work_key = "Follower:EXECUTE"
`)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	a, err := newApp(context.Background(), cfg, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	stats := a.queues.Stats()
	if len(stats) != 3 || stats[1].Name != "slow" {
		t.Fatalf("unexpected queues %+v", stats)
	}
	q, ok := a.queues.Queue("slow")
	if !ok {
		t.Fatal("queue slow not registered")
	}
	if q.Weight() != 5 {
		t.Errorf("weight = %d, want 5", q.Weight())
	}
}

func TestRootCmd_SampleConfig(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sample-config"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "[[queues]]") {
		t.Error("sample config should describe queues")
	}
}

func TestApp_Healthz(t *testing.T) {
	cfg, err := config.Parse("")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	a, err := newApp(context.Background(), cfg, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "ok") {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics endpoint should expose runtime collectors, got %d", rec.Code)
	}
}
