package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// DefaultMaxWait — период перепроверки очередей в Next.
const DefaultMaxWait = 100 * time.Millisecond

// ManagerConfig — конфигурация Manager.
type ManagerConfig struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Router — правило возврата flows. Default: OriginRouter.
	Router Router
}

// Manager — реестр очередей, сгруппированных по WorkKey.
type Manager struct {
	mu     sync.RWMutex
	byName map[string]*TaskQueue
	byKey  map[domain.WorkKey][]*TaskQueue
	order  []*TaskQueue

	// notify закрывается и заменяется при каждом успешном Put
	notifyMu sync.Mutex
	notify   chan struct{}

	router  Router
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewManager создаёт пустой менеджер.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := cfg.Router
	if router == nil {
		router = OriginRouter{}
	}
	return &Manager{
		byName:  make(map[string]*TaskQueue),
		byKey:   make(map[domain.WorkKey][]*TaskQueue),
		notify:  make(chan struct{}),
		router:  router,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Register добавляет очередь. Повтор имени — ErrQueueExists, менеджер не меняется.
func (m *Manager) Register(q *TaskQueue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[q.Name()]; ok {
		m.logger.Warn("queue already registered", "queue", q.Name(), "work_key", q.Key().Name())
		return fmt.Errorf("%w: %s", ErrQueueExists, q.Name())
	}

	m.byName[q.Name()] = q
	m.order = append(m.order, q)

	// Индекс раздела: по возрастанию веса, при равенстве — порядок регистрации.
	// Take и Put читают старый срез без блокировки, поэтому индекс всегда новый массив.
	prev := m.byKey[q.Key()]
	queues := make([]*TaskQueue, len(prev), len(prev)+1)
	copy(queues, prev)
	queues = append(queues, q)
	sort.SliceStable(queues, func(i, j int) bool {
		return queues[i].Weight() < queues[j].Weight()
	})
	m.byKey[q.Key()] = queues

	m.logger.Info("queue registered",
		"queue", q.Name(),
		"work_key", q.Key().Name(),
		"weight", q.Weight(),
		"capacity", q.Capacity(),
	)
	m.metrics.SetQueueDepth(q.Name(), q.Key().Name(), q.Len())
	return nil
}

// Queue возвращает очередь по имени.
func (m *Manager) Queue(name string) (*TaskQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.byName[name]
	return q, ok
}

// Keys возвращает разделы, у которых есть очереди.
func (m *Manager) Keys() []domain.WorkKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]domain.WorkKey, 0, len(m.byKey))
	for key := range m.byKey {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name() < keys[j].Name() })
	return keys
}

// HasKey проверяет, есть ли очереди для раздела.
func (m *Manager) HasKey(key domain.WorkKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey[key]) > 0
}

// Take забирает flow из первой готовой непустой очереди раздела.
// Выданный flow запоминает раздел как origin.
func (m *Manager) Take(key domain.WorkKey) (*flow.TaskFlow, bool) {
	m.mu.RLock()
	queues := m.byKey[key]
	m.mu.RUnlock()

	for _, q := range queues {
		f, ok := q.Dequeue()
		if !ok {
			continue
		}
		f.SetOrigin(key)
		m.metrics.SetQueueDepth(q.Name(), key.Name(), q.Len())
		return f, true
	}
	return nil, false
}

// Next ждёт flow в разделе key.
//
// Очереди перепроверяются после каждого Put и не реже раза в maxWait,
// чтобы заметить открывшиеся RateGate. Возвращает ошибку ctx при отмене.
func (m *Manager) Next(ctx context.Context, key domain.WorkKey, maxWait time.Duration) (*flow.TaskFlow, error) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		// Канал берётся до Take, чтобы не пропустить Put между ними
		wait := m.waitCh()
		if f, ok := m.Take(key); ok {
			return f, nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(maxWait)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		case <-timer.C:
		}
	}
}

// Put кладёт flow в первую по весу очередь раздела, где есть место.
func (m *Manager) Put(key domain.WorkKey, f *flow.TaskFlow) error {
	if f == nil {
		return errors.New("flow is nil")
	}
	if f.Status().IsTerminal() {
		return fmt.Errorf("%w: %s", flow.ErrFlowFinished, f.ID())
	}

	m.mu.RLock()
	queues := m.byKey[key]
	m.mu.RUnlock()

	if len(queues) == 0 {
		return fmt.Errorf("%w: %s", ErrNoRoute, key.Name())
	}

	for _, q := range queues {
		if err := q.Enqueue(f); err != nil {
			if errors.Is(err, ErrQueueFull) {
				continue
			}
			return err
		}
		m.metrics.SetQueueDepth(q.Name(), key.Name(), q.Len())
		m.broadcast()
		return nil
	}

	m.logger.Warn("all queues full",
		"work_key", key.Name(),
		"flow_id", f.ID().String(),
	)
	return fmt.Errorf("%w: all queues of %s", ErrQueueFull, key.Name())
}

// RouteBack возвращает незавершённый flow в раздел, выбранный Router.
func (m *Manager) RouteBack(f *flow.TaskFlow) error {
	if f.Status().IsTerminal() {
		return fmt.Errorf("%w: %s", flow.ErrFlowFinished, f.ID())
	}
	key, err := m.router.Route(f)
	if err != nil {
		return err
	}
	return m.Put(key, f)
}

// Stats возвращает снимки всех очередей в порядке регистрации.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.order))
	for _, q := range m.order {
		stats = append(stats, q.Stats())
	}
	return stats
}

func (m *Manager) waitCh() <-chan struct{} {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	return m.notify
}

func (m *Manager) broadcast() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	close(m.notify)
	m.notify = make(chan struct{})
}
