package queue

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
)

// Значения по умолчанию для TaskQueue.
const (
	DefaultWeight   = 1
	DefaultCapacity = 50
)

// Config — параметры очереди.
type Config struct {
	// Name — уникальное имя. Default: имя WorkKey.
	Name string

	// Key — раздел, который обслуживает очередь.
	Key domain.WorkKey

	// Weight — порядок опроса внутри раздела: меньше = раньше. Default: 1.
	Weight int

	// Capacity — максимум flows в очереди. Default: 50.
	Capacity int

	// Gate — фильтр допуска. Default: AlwaysReady.
	Gate Gate
}

// TaskQueue — ограниченная FIFO-очередь task flows. Потокобезопасна.
type TaskQueue struct {
	name     string
	key      domain.WorkKey
	weight   int
	capacity int
	gate     Gate

	mu    sync.Mutex
	items *list.List
}

// New создаёт очередь.
func New(cfg Config) *TaskQueue {
	if cfg.Name == "" {
		cfg.Name = cfg.Key.Name()
	}
	if cfg.Weight <= 0 {
		cfg.Weight = DefaultWeight
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Gate == nil {
		cfg.Gate = AlwaysReady{}
	}
	return &TaskQueue{
		name:     cfg.Name,
		key:      cfg.Key,
		weight:   cfg.Weight,
		capacity: cfg.Capacity,
		gate:     cfg.Gate,
		items:    list.New(),
	}
}

func (q *TaskQueue) Name() string        { return q.name }
func (q *TaskQueue) Key() domain.WorkKey { return q.key }
func (q *TaskQueue) Weight() int         { return q.weight }
func (q *TaskQueue) Capacity() int       { return q.capacity }

// Len возвращает текущее число flows.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Enqueue добавляет flow в конец очереди.
func (q *TaskQueue) Enqueue(f *flow.TaskFlow) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() >= q.capacity {
		return fmt.Errorf("%w: %s (capacity %d)", ErrQueueFull, q.name, q.capacity)
	}
	q.items.PushBack(f)
	return nil
}

// Dequeue забирает первый flow, если очередь непуста и фильтр готов.
func (q *TaskQueue) Dequeue() (*flow.TaskFlow, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil || !q.gate.Ready() {
		return nil, false
	}
	q.items.Remove(front)
	q.gate.Admit()
	return front.Value.(*flow.TaskFlow), true
}

// ReadyToDequeue сообщает, пропустит ли фильтр выдачу сейчас.
func (q *TaskQueue) ReadyToDequeue() bool {
	return q.gate.Ready()
}

// Stats — снимок состояния очереди.
type Stats struct {
	Name     string `json:"name"`
	WorkKey  string `json:"work_key"`
	Weight   int    `json:"weight"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
}

// Stats возвращает снимок состояния.
func (q *TaskQueue) Stats() Stats {
	return Stats{
		Name:     q.name,
		WorkKey:  q.key.Name(),
		Weight:   q.weight,
		Length:   q.Len(),
		Capacity: q.capacity,
	}
}
