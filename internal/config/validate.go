package config

import (
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/connector"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// Validate проверяет, что конфигурация пригодна для запуска.
func (c *Config) Validate() error {
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	queueKeys, err := c.validateQueues()
	if err != nil {
		return err
	}
	if err := c.validateWorkers(queueKeys); err != nil {
		return err
	}
	if !queueKeys[c.Engine.DefaultWorkKey] {
		return invalid("engine.default_work_key %q has no queue", c.Engine.DefaultWorkKey)
	}
	if err := c.validatePhaseRouting(queueKeys); err != nil {
		return err
	}
	flows, err := c.validateFlows()
	if err != nil {
		return err
	}
	return c.validateSchedules(flows, queueKeys)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format must be json or text (got %q)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateEngine() error {
	switch c.Engine.Router {
	case RouterOrigin, RouterPhase:
	default:
		return invalid("engine.router must be origin or phase (got %q)", c.Engine.Router)
	}
	key, err := domain.ParseWorkKey(c.Engine.DefaultWorkKey)
	if err != nil {
		return invalid("engine.default_work_key: %v", err)
	}
	c.Engine.DefaultWorkKey = key.Name()
	return nil
}

func (c *Config) validateBackends() error {
	if c.Database.Enabled && strings.TrimSpace(c.Database.URL) == "" {
		return invalid("database.url must be set when database.enabled is true (or set DB_URL)")
	}
	if c.RabbitMQ.Enabled && strings.TrimSpace(c.RabbitMQ.URL) == "" {
		return invalid("rabbitmq.url must be set when rabbitmq.enabled is true (or set RABBITMQ_URL)")
	}
	return nil
}

// validateQueues возвращает множество разделов, у которых есть очереди.
func (c *Config) validateQueues() (map[string]bool, error) {
	names := make(map[string]bool, len(c.Queues))
	keys := make(map[string]bool)

	for i, q := range c.Queues {
		if _, err := domain.ParseWorkKey(q.WorkKey); err != nil {
			return nil, invalid("queues[%d].work_key: %v", i, err)
		}
		if names[q.Name] {
			return nil, invalid("queues[%d]: duplicate queue name %q", i, q.Name)
		}
		if q.Weight < 0 || q.Capacity < 0 || q.RateIntervalMS < 0 {
			return nil, invalid("queues[%d] %q: weight, capacity and rate_interval_ms must not be negative", i, q.Name)
		}
		names[q.Name] = true
		keys[q.WorkKey] = true
	}
	return keys, nil
}

// validatePhaseRouting проверяет, что при router = "phase" у каждой роли
// есть очереди обеих фаз: HANDLE и EXECUTE.
func (c *Config) validatePhaseRouting(queueKeys map[string]bool) error {
	if c.Engine.Router != RouterPhase {
		return nil
	}
	for name := range queueKeys {
		key, err := domain.ParseWorkKey(name)
		if err != nil {
			continue
		}
		for _, phase := range []domain.Phase{domain.PhaseHandle, domain.PhaseExecute} {
			need := domain.NewWorkKey(key.Role, phase).Name()
			if !queueKeys[need] {
				return invalid("engine.router = phase requires a queue for %q", need)
			}
		}
	}
	return nil
}

func (c *Config) validateWorkers(queueKeys map[string]bool) error {
	for i, w := range c.Workers {
		if _, err := domain.ParseWorkKey(w.WorkKey); err != nil {
			return invalid("workers[%d].work_key: %v", i, err)
		}
		if !queueKeys[w.WorkKey] {
			return invalid("workers[%d]: no queue for work key %q", i, w.WorkKey)
		}
		if w.Count <= 0 {
			return invalid("workers[%d].count must be positive", i)
		}
	}
	return nil
}

// validateFlows возвращает множество имён flows.
func (c *Config) validateFlows() (map[string]bool, error) {
	known := flow.DefaultHandlers()
	names := make(map[string]bool, len(c.Flows))
	connectors := make(map[string]bool)
	for _, t := range connector.BuiltinTypes() {
		connectors[t] = true
	}

	for i, f := range c.Flows {
		if strings.TrimSpace(f.Name) == "" {
			return nil, invalid("flows[%d].name is required", i)
		}
		if names[f.Name] {
			return nil, invalid("flows[%d]: duplicate flow name %q", i, f.Name)
		}
		if !connectors[f.Connector] {
			return nil, invalid("flows[%d] %q: unknown connector %q (known: %s)",
				i, f.Name, f.Connector, strings.Join(connector.BuiltinTypes(), ", "))
		}
		if _, err := known.Resolve(f.Pre); err != nil {
			return nil, invalid("flows[%d] %q pre: %v", i, f.Name, err)
		}
		if _, err := known.Resolve(f.Post); err != nil {
			return nil, invalid("flows[%d] %q post: %v", i, f.Name, err)
		}
		if f.Timeout() < 0 || f.Retries() < 0 {
			return nil, invalid("flows[%d] %q: limits must not be negative", i, f.Name)
		}
		names[f.Name] = true
	}
	return names, nil
}

func (c *Config) validateSchedules(flows, queueKeys map[string]bool) error {
	names := make(map[string]bool, len(c.Schedules))

	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Name) == "" {
			return invalid("schedules[%d].name is required", i)
		}
		if names[s.Name] {
			return invalid("schedules[%d]: duplicate schedule name %q", i, s.Name)
		}
		if err := scheduler.ValidateCronExpr(s.Cron); err != nil {
			return invalid("schedules[%d] %q: %v", i, s.Name, err)
		}
		if !flows[s.Flow] {
			return invalid("schedules[%d] %q: unknown flow %q", i, s.Name, s.Flow)
		}
		if s.WorkKey != "" {
			key, err := domain.ParseWorkKey(s.WorkKey)
			if err != nil {
				return invalid("schedules[%d].work_key: %v", i, err)
			}
			if !queueKeys[key.Name()] {
				return invalid("schedules[%d]: no queue for work key %q", i, s.WorkKey)
			}
		}
		if strings.TrimSpace(s.Identity.Host) == "" {
			return invalid("schedules[%d] %q: identity.host is required", i, s.Name)
		}
		if cat := strings.ToUpper(strings.TrimSpace(s.Command.Category)); cat != "" &&
			string(domain.ParseCommandCategory(cat)) != cat {
			return invalid("schedules[%d] %q: unknown command.category %q", i, s.Name, s.Command.Category)
		}
		names[s.Name] = true
	}
	return nil
}
