package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Значения лимитов по умолчанию для flows из конфигурации.
const (
	DefaultMaxTimeout = 300 * time.Second
	DefaultMaxRetry   = 7
)

// Spec — политика для flows одного типа.
//
// Spec неизменяема после регистрации и разделяется всеми flows этого типа.
type Spec struct {
	// Name — уникальное имя типа flow.
	Name string

	// PreHandlers — обработчики до отправки команды, по порядку.
	PreHandlers []Handler

	// PostHandlers — обработчики после отправки команды, по порядку.
	PostHandlers []Handler

	// Connector — тип коннектора в connector.Registry.
	Connector string

	// MaxTimeout — лимит суммарного времени шагов. 0 — без лимита.
	MaxTimeout time.Duration

	// MaxRetry — число повторных dispatch после ошибки коннектора. 0 — без повторов.
	MaxRetry int

	// ResultHandler — необязательный приёмник итогов COMPLETED flow.
	ResultHandler ResultHandler
}

// Validate проверяет спецификацию.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: spec is nil", ErrInvalidSpec)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if s.Connector == "" {
		return fmt.Errorf("%w: %s: connector is required", ErrInvalidSpec, s.Name)
	}
	if s.MaxTimeout < 0 || s.MaxRetry < 0 {
		return fmt.Errorf("%w: %s: limits must not be negative", ErrInvalidSpec, s.Name)
	}
	for i, h := range s.PreHandlers {
		if h == nil {
			return fmt.Errorf("%w: %s: pre handler #%d is nil", ErrInvalidSpec, s.Name, i)
		}
	}
	for i, h := range s.PostHandlers {
		if h == nil {
			return fmt.Errorf("%w: %s: post handler #%d is nil", ErrInvalidSpec, s.Name, i)
		}
	}
	return nil
}

// Catalog — реестр спецификаций по имени. Потокобезопасен.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[string]*Spec)}
}

// Register валидирует и регистрирует спецификацию.
// Спецификация с тем же именем будет перезаписана.
func (c *Catalog) Register(spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[spec.Name] = spec
	return nil
}

// Get возвращает спецификацию по имени.
func (c *Catalog) Get(name string) (*Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpec, name)
	}
	return spec, nil
}

// Names возвращает отсортированный список имён.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
