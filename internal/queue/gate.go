package queue

import (
	"sync"
	"time"
)

// DefaultRateInterval — минимальный интервал между выдачами для RateGate.
const DefaultRateInterval = 200 * time.Millisecond

// Gate решает, можно ли сейчас выдать flow из очереди.
//
// Ready вызывается перед выдачей, Admit — после успешной выдачи.
type Gate interface {
	Ready() bool
	Admit()
}

// AlwaysReady — фильтр без ограничений.
type AlwaysReady struct{}

func (AlwaysReady) Ready() bool { return true }
func (AlwaysReady) Admit()      {}

// RateGate пропускает не чаще одного раза за interval.
// До первой выдачи всегда готов.
type RateGate struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     time.Time
	admitted bool
}

// RateOption настраивает RateGate.
type RateOption func(*RateGate)

// WithGateClock подменяет источник времени (для тестов).
func WithGateClock(now func() time.Time) RateOption {
	return func(g *RateGate) { g.now = now }
}

// NewRateGate создаёт RateGate. interval <= 0 — DefaultRateInterval.
func NewRateGate(interval time.Duration, opts ...RateOption) *RateGate {
	if interval <= 0 {
		interval = DefaultRateInterval
	}
	g := &RateGate{interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Interval возвращает минимальный интервал между выдачами.
func (g *RateGate) Interval() time.Duration { return g.interval }

// Ready возвращает true, если с последней выдачи прошло не меньше interval.
func (g *RateGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.admitted {
		return true
	}
	return g.now().Sub(g.last) >= g.interval
}

// Admit запоминает момент выдачи.
func (g *RateGate) Admit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = g.now()
	g.admitted = true
}
