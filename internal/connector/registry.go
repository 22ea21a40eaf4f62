package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// shardCount — число шардов карты экземпляров.
const shardCount = 32

// Handle — зарегистрированный экземпляр коннектора с собственным мьютексом.
//
// Мьютекс берётся на время каждого Dispatch: у одного ключа не бывает
// двух команд в полёте одновременно.
type Handle struct {
	key           string
	connectorType string
	conn          Connector

	mu      sync.Mutex
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Key возвращает ключ экземпляра (тип/ID записи).
func (h *Handle) Key() string { return h.key }

// Connector возвращает сам коннектор.
func (h *Handle) Connector() Connector { return h.conn }

// Dispatch отправляет команду через операцию, выбранную по RouteKey.
//
// Возвращает ErrRouting, если операции нет. Ошибка операции
// оборачивается в ErrDispatch, а результат заменяется на ABNORMAL.
func (h *Handle) Dispatch(ctx context.Context, cmd domain.Command) (domain.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	routeKey := cmd.RouteKey()
	h.logger.Info("connector dispatch",
		"connector", h.connectorType,
		"key", h.key,
		"category", cmd.Category(),
		"command_id", cmd.ID(),
		"index", cmd.Index(),
		"content_start", cmd.Preview(),
		"route", routeKey,
	)

	op, ok := h.conn.Operation(routeKey)
	if !ok || op == nil {
		return domain.Result{}, fmt.Errorf("%w: %s (connector %s)", ErrRouting, routeKey, h.connectorType)
	}

	// Пока ждали мьютекс, вызывающий мог отменить контекст
	if err := ctx.Err(); err != nil {
		return domain.Abnormal(err), fmt.Errorf("%w: %s: %w", ErrDispatch, routeKey, err)
	}

	start := time.Now()
	result, err := op(ctx, cmd)
	if err != nil {
		if result.Category == "" || result.Category == domain.ResultSuccess {
			result = domain.Abnormal(err)
		}
		h.metrics.ObserveDispatch(h.connectorType, routeKey, string(result.Category), time.Since(start))
		return result, fmt.Errorf("%w: %s: %w", ErrDispatch, routeKey, err)
	}
	h.metrics.ObserveDispatch(h.connectorType, routeKey, string(result.Category), time.Since(start))

	return result, nil
}

type shard struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// Registry — реестр коннекторов: один экземпляр на ключ на всё время жизни процесса.
//
// Ключ экземпляра — "тип/ID записи". Поиск и создание выполняются
// в одной критической секции шарда, шард выбирается по xxhash ключа.
type Registry struct {
	factoriesMu sync.RWMutex
	factories   map[string]Factory

	shards [shardCount]*shard
	count  atomic.Int64

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Config — конфигурация Registry.
type Config struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	for i := range r.shards {
		r.shards[i] = &shard{handles: make(map[string]*Handle)}
	}
	return r
}

// Register добавляет фабрику для типа коннектора.
// Если фабрика с таким типом уже есть, она будет перезаписана.
func (r *Registry) Register(connectorType string, factory Factory) {
	r.factoriesMu.Lock()
	defer r.factoriesMu.Unlock()
	r.factories[connectorType] = factory
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Has проверяет, зарегистрирован ли тип коннектора.
func (r *Registry) Has(connectorType string) bool {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()
	_, ok := r.factories[connectorType]
	return ok
}

// Key возвращает ключ экземпляра для записи.
func Key(connectorType string, record *domain.Record) string {
	return connectorType + "/" + record.ID()
}

func (r *Registry) shardFor(key string) *shard {
	return r.shards[xxhash.Sum64String(key)%shardCount]
}

// GetOrCreate возвращает экземпляр для записи, создавая его при первом обращении.
//
// Конкурентные вызовы с одним ключом получают один и тот же Handle,
// фабрика вызывается ровно один раз.
func (r *Registry) GetOrCreate(ctx context.Context, connectorType string, record *domain.Record) (*Handle, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record is nil", ErrCreate)
	}

	r.factoriesMu.RLock()
	factory, ok := r.factories[connectorType]
	r.factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, connectorType)
	}

	key := Key(connectorType, record)
	sh := r.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if h, ok := sh.handles[key]; ok {
		return h, nil
	}

	conn, err := factory(key, record)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreate, connectorType, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %s: factory returned nil", ErrCreate, connectorType)
	}

	h := &Handle{
		key:           key,
		connectorType: connectorType,
		conn:          conn,
		logger:        r.logger,
		metrics:       r.metrics,
	}
	sh.handles[key] = h
	live := r.count.Add(1)

	r.logger.Debug("connector created",
		"connector", connectorType,
		"key", key,
		"identity_id", record.Identity().ID(),
		"address", record.Identity().Address().Describe(),
	)
	r.metrics.SetConnectors(int(live))

	return h, nil
}

// Dispatch находит (или создаёт) коннектор записи и отправляет её команду.
func (r *Registry) Dispatch(ctx context.Context, connectorType string, record *domain.Record) (domain.Result, error) {
	h, err := r.GetOrCreate(ctx, connectorType, record)
	if err != nil {
		return domain.Result{}, err
	}
	return h.Dispatch(ctx, record.Command())
}

// Len возвращает число живых экземпляров.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Close закрывает коннекторы, реализующие io.Closer, и очищает реестр.
func (r *Registry) Close() error {
	var errs []error
	for _, sh := range r.shards {
		sh.mu.Lock()
		for key, h := range sh.handles {
			if closer, ok := h.conn.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", key, err))
				}
			}
			delete(sh.handles, key)
			r.count.Add(-1)
		}
		sh.mu.Unlock()
	}
	r.metrics.SetConnectors(0)
	return errors.Join(errs...)
}
