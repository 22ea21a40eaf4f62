package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func testRecord(host, content, option string) *domain.Record {
	identity := domain.NewIdentity(
		domain.Account{Username: "svc"},
		domain.Address{Host: host, Port: "8080"},
		domain.Terminal{Name: "gw", Version: "1"},
		domain.Protocol{Category: domain.ProtocolHTTP, Name: "rest", Version: "1"},
	)
	cmd := domain.NewCommand(domain.CommandBuiltIn, content, nil, domain.WithOption(option))
	return domain.NewRecord(identity, cmd)
}

func newTestRegistry() *Registry {
	return NewRegistry(Config{Logger: telemetry.NopLogger()})
}

// echoConnector отвечает SUCCESS с именем операции в payload.
func echoFactory(created *atomic.Int64) Factory {
	return func(_ string, _ *domain.Record) (Connector, error) {
		created.Add(1)
		return Operations{
			domain.DefaultRouteKey: func(_ context.Context, cmd domain.Command) (domain.Result, error) {
				return domain.Result{Category: domain.ResultSuccess, Payload: "DEFAULT:" + cmd.Content()}, nil
			},
			"SEND_MESSAGE": func(_ context.Context, cmd domain.Command) (domain.Result, error) {
				return domain.Result{Category: domain.ResultSuccess, Payload: "SEND_MESSAGE:" + cmd.Content()}, nil
			},
		}, nil
	}
}

func TestRegistry_GetOrCreate_SameKeyConcurrent(t *testing.T) {
	var created atomic.Int64
	r := newTestRegistry()
	r.Register("echo", echoFactory(&created))

	rec := testRecord("10.0.0.1", "ping", "")

	const n = 64
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.GetOrCreate(context.Background(), "echo", rec)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly 1 connector constructed, got %d", created.Load())
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatal("all callers should receive the same handle")
		}
	}
	if r.Len() != 1 {
		t.Errorf("expected Len 1, got %d", r.Len())
	}
}

func TestRegistry_GetOrCreate_DistinctKeysConcurrent(t *testing.T) {
	var created atomic.Int64
	r := newTestRegistry()
	r.Register("echo", echoFactory(&created))

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[*Handle]struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord(fmt.Sprintf("10.0.1.%d", i), "ping", "")
			h, err := r.GetOrCreate(context.Background(), "echo", rec)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			seen[h] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if created.Load() != n {
		t.Errorf("expected %d connectors, got %d", n, created.Load())
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct handles, got %d", n, len(seen))
	}
	if r.Len() != n {
		t.Errorf("expected Len %d, got %d", n, r.Len())
	}
}

func TestRegistry_KeyIncludesCommand(t *testing.T) {
	var created atomic.Int64
	r := newTestRegistry()
	r.Register("echo", echoFactory(&created))

	// Один адрес, разные команды — разные экземпляры (ключ = ID записи)
	h1, _ := r.GetOrCreate(context.Background(), "echo", testRecord("10.0.0.1", "ping", ""))
	h2, _ := r.GetOrCreate(context.Background(), "echo", testRecord("10.0.0.1", "status", ""))
	h3, _ := r.GetOrCreate(context.Background(), "echo", testRecord("10.0.0.1", "ping", "#[send message]"))

	if h1 == h2 {
		t.Error("different commands should use different connector instances")
	}
	if h1 != h3 {
		t.Error("option is not part of the record id, instance should be reused")
	}
}

func TestRegistry_UnknownConnector(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Dispatch(context.Background(), "missing", testRecord("h", "x", ""))
	if !errors.Is(err, ErrUnknownConnector) {
		t.Errorf("expected ErrUnknownConnector, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := newTestRegistry()
	r.Register("broken", func(string, *domain.Record) (Connector, error) {
		return nil, errors.New("no credentials")
	})

	_, err := r.GetOrCreate(context.Background(), "broken", testRecord("h", "x", ""))
	if !errors.Is(err, ErrCreate) {
		t.Errorf("expected ErrCreate, got %v", err)
	}
	if r.Len() != 0 {
		t.Error("failed construction should not be registered")
	}
}

func TestRegistry_DispatchRouting(t *testing.T) {
	var created atomic.Int64
	r := newTestRegistry()
	r.Register("echo", echoFactory(&created))

	res, err := r.Dispatch(context.Background(), "echo", testRecord("h", "hi", "#[send message]"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Payload != "SEND_MESSAGE:hi" {
		t.Errorf("expected SEND_MESSAGE operation, got %v", res.Payload)
	}

	res, err = r.Dispatch(context.Background(), "echo", testRecord("h", "hi", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Payload != "DEFAULT:hi" {
		t.Errorf("expected DEFAULT operation, got %v", res.Payload)
	}

	_, err = r.Dispatch(context.Background(), "echo", testRecord("h", "hi", "#[reboot now]"))
	if !errors.Is(err, ErrRouting) {
		t.Errorf("expected ErrRouting, got %v", err)
	}
}

func TestHandle_DispatchErrorBecomesAbnormal(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	r := NewRegistry(Config{Logger: telemetry.NopLogger(), Metrics: metrics})
	r.Register("flaky", func(string, *domain.Record) (Connector, error) {
		return Operations{
			domain.DefaultRouteKey: func(context.Context, domain.Command) (domain.Result, error) {
				return domain.Result{}, errors.New("connection reset")
			},
		}, nil
	})

	res, err := r.Dispatch(context.Background(), "flaky", testRecord("h", "x", ""))
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
	if res.Category != domain.ResultAbnormal {
		t.Errorf("expected ABNORMAL result, got %s", res.Category)
	}
	if got := testutil.ToFloat64(metrics.Dispatches.WithLabelValues("flaky", "DEFAULT", "ABNORMAL")); got != 1 {
		t.Errorf("expected 1 abnormal dispatch metric, got %v", got)
	}
}

func TestHandle_DispatchSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	r := newTestRegistry()
	r.Register("slow", func(string, *domain.Record) (Connector, error) {
		return Operations{
			domain.DefaultRouteKey: func(context.Context, domain.Command) (domain.Result, error) {
				cur := inFlight.Add(1)
				for {
					prev := maxInFlight.Load()
					if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return domain.Result{Category: domain.ResultSuccess}, nil
			},
		}, nil
	})

	rec := testRecord("10.0.0.9", "x", "")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Dispatch(context.Background(), "slow", rec); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("expected at most 1 in-flight dispatch per key, got %d", maxInFlight.Load())
	}
}

func TestHandle_CancelledContext(t *testing.T) {
	var created atomic.Int64
	r := newTestRegistry()
	r.Register("echo", echoFactory(&created))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Dispatch(ctx, "echo", testRecord("h", "x", ""))
	if !errors.Is(err, ErrDispatch) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ErrDispatch wrapping context.Canceled, got %v", err)
	}
	if res.Category != domain.ResultAbnormal {
		t.Errorf("expected ABNORMAL, got %s", res.Category)
	}
}

type closingConnector struct {
	Operations
	closed *atomic.Int64
}

func (c closingConnector) Close() error {
	c.closed.Add(1)
	return nil
}

func TestRegistry_Close(t *testing.T) {
	var closed atomic.Int64
	r := newTestRegistry()
	r.Register("c", func(string, *domain.Record) (Connector, error) {
		return closingConnector{Operations: Operations{}, closed: &closed}, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := r.GetOrCreate(context.Background(), "c", testRecord(fmt.Sprintf("h%d", i), "x", "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if closed.Load() != 3 {
		t.Errorf("expected 3 closed connectors, got %d", closed.Load())
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_Types(t *testing.T) {
	r := newTestRegistry()
	r.Register("b", nil)
	r.Register("a", nil)

	types := r.Types()
	if len(types) != 2 || types[0] != "a" || types[1] != "b" {
		t.Errorf("unexpected types %v", types)
	}
	if !r.Has("a") || r.Has("z") {
		t.Error("Has returned wrong result")
	}
}
