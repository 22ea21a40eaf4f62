package config

import (
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

func (c *Config) normalize() {
	c.normalizeLog()
	c.normalizeEngine()
	c.normalizeTopology()
	c.normalizeFlows()
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = defaultDBMaxConns
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = defaultPrefetch
	}
	if c.RabbitMQ.DialTimeoutSeconds <= 0 {
		c.RabbitMQ.DialTimeoutSeconds = defaultDialTimeoutSeconds
	}
	if c.HTTPConnector.TimeoutSeconds <= 0 {
		c.HTTPConnector.TimeoutSeconds = defaultConnectorTimeout
	}
	if c.HTTP.ShutdownTimeoutSeconds <= 0 {
		c.HTTP.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
}

func (c *Config) normalizeLog() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

func (c *Config) normalizeEngine() {
	if c.Engine.MaxWaitMS <= 0 {
		c.Engine.MaxWaitMS = defaultMaxWaitMS
	}
	if c.Engine.SinkTimeoutSeconds <= 0 {
		c.Engine.SinkTimeoutSeconds = defaultSinkTimeoutSeconds
	}
	c.Engine.Router = strings.ToLower(strings.TrimSpace(c.Engine.Router))
	if c.Engine.Router == "" {
		c.Engine.Router = defaultRouter
	}
	if strings.TrimSpace(c.Engine.DefaultWorkKey) == "" {
		c.Engine.DefaultWorkKey = defaultWorkKey
	}
}

// normalizeTopology заполняет очереди и воркеров по умолчанию.
func (c *Config) normalizeTopology() {
	if len(c.Queues) == 0 {
		c.Queues = []Queue{
			{WorkKey: "Follower:HANDLE"},
			{WorkKey: "Follower:EXECUTE"},
		}
	}

	for i := range c.Queues {
		q := &c.Queues[i]
		if key, err := domain.ParseWorkKey(q.WorkKey); err == nil {
			q.WorkKey = key.Name()
		}
		if strings.TrimSpace(q.Name) == "" {
			q.Name = q.WorkKey
		}
		if q.RateLimited && q.RateIntervalMS <= 0 {
			q.RateIntervalMS = defaultRateIntervalMS
		}
	}

	if len(c.Workers) == 0 {
		seen := make(map[string]bool)
		for _, q := range c.Queues {
			if seen[q.WorkKey] {
				continue
			}
			seen[q.WorkKey] = true
			c.Workers = append(c.Workers, Worker{WorkKey: q.WorkKey, Count: defaultWorkersPerKey})
		}
	}
	for i := range c.Workers {
		if key, err := domain.ParseWorkKey(c.Workers[i].WorkKey); err == nil {
			c.Workers[i].WorkKey = key.Name()
		}
	}
}

func (c *Config) normalizeFlows() {
	for i := range c.Flows {
		if strings.TrimSpace(c.Flows[i].Connector) == "" {
			c.Flows[i].Connector = defaultConnector
		}
	}
}
