package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/shaiso/Conveyor/internal/flow"
	"github.com/shaiso/Conveyor/internal/intake"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Log — настройки логирования.
type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// HTTP — HTTP-сервер API и метрик.
type HTTP struct {
	Addr                   string `toml:"addr"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Engine — параметры воркеров и очередей.
type Engine struct {
	MaxWaitMS          int    `toml:"max_wait_ms"`          // период перепроверки очередей
	SinkTimeoutSeconds int    `toml:"sink_timeout_seconds"` // таймаут одного Sink
	Router             string `toml:"router"`               // origin, phase
	DefaultWorkKey     string `toml:"default_work_key"`     // раздел для заявок без work_key
}

// Database — журнал итогов в PostgreSQL.
type Database struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	MaxConns int    `toml:"max_conns"`
}

// RabbitMQ — приём заявок и публикация итогов.
type RabbitMQ struct {
	Enabled            bool   `toml:"enabled"`
	URL                string `toml:"url"`
	Prefetch           int    `toml:"prefetch"`
	DialTimeoutSeconds int    `toml:"dial_timeout_seconds"` // ожидание брокера при старте
	ConsumeSubmit      bool   `toml:"consume_submit"`
	PublishFinished    bool   `toml:"publish_finished"`
}

// HTTPConnector — встроенный HTTP-коннектор.
type HTTPConnector struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Queue — одна очередь task flows.
type Queue struct {
	Name           string `toml:"name"` // Default: work_key
	WorkKey        string `toml:"work_key"`
	Weight         int    `toml:"weight"`
	Capacity       int    `toml:"capacity"`
	RateLimited    bool   `toml:"rate_limited"`
	RateIntervalMS int    `toml:"rate_interval_ms"`
}

// Worker — сколько воркеров обслуживают раздел.
type Worker struct {
	WorkKey string `toml:"work_key"`
	Count   int    `toml:"count"`
}

// Flow — тип flow, собранный из встроенных обработчиков.
type Flow struct {
	Name              string   `toml:"name"`
	Connector         string   `toml:"connector"`
	Pre               []string `toml:"pre"`
	Post              []string `toml:"post"`
	MaxTimeoutSeconds *int     `toml:"max_timeout_seconds"` // не задан — 300, 0 — без лимита
	MaxRetry          *int     `toml:"max_retry"`           // не задан — 7, 0 — без повторов
}

// Timeout возвращает лимит времени flow.
func (f Flow) Timeout() time.Duration {
	if f.MaxTimeoutSeconds == nil {
		return flow.DefaultMaxTimeout
	}
	return time.Duration(*f.MaxTimeoutSeconds) * time.Second
}

// Retries возвращает число повторных dispatch.
func (f Flow) Retries() int {
	if f.MaxRetry == nil {
		return flow.DefaultMaxRetry
	}
	return *f.MaxRetry
}

// Schedule — периодическая заявка.
type Schedule struct {
	Name     string                 `toml:"name"`
	Cron     string                 `toml:"cron"`
	Flow     string                 `toml:"flow"`
	WorkKey  string                 `toml:"work_key"`
	Identity intake.IdentityRequest `toml:"identity"`
	Command  intake.CommandRequest  `toml:"command"`
}

// Request возвращает заявку расписания.
func (s Schedule) Request() intake.SubmitRequest {
	return intake.SubmitRequest{
		Flow:     s.Flow,
		WorkKey:  s.WorkKey,
		Identity: s.Identity,
		Command:  s.Command,
	}
}

// Config — вся конфигурация Conveyor.
//
// Секции:
//   - Log: уровень и формат логов
//   - HTTP: адрес и таймауты API
//   - Engine: воркеры и правило возврата flows
//   - Database: журнал итогов (pgx)
//   - RabbitMQ: очередь заявок и события итогов
//   - HTTPConnector: таймаут HTTP-коннектора
//   - Queues, Workers: топология очередей
//   - Flows: типы flows
//   - Schedules: периодические заявки
type Config struct {
	Log           Log           `toml:"log"`
	HTTP          HTTP          `toml:"http"`
	Engine        Engine        `toml:"engine"`
	Database      Database      `toml:"database"`
	RabbitMQ      RabbitMQ      `toml:"rabbitmq"`
	HTTPConnector HTTPConnector `toml:"http_connector"`
	Queues        []Queue       `toml:"queues"`
	Workers       []Worker      `toml:"workers"`
	Flows         []Flow        `toml:"flows"`
	Schedules     []Schedule    `toml:"schedules"`
}

// Load читает файл path (если задан), применяет переменные окружения,
// нормализует и проверяет конфигурацию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse разбирает конфигурацию из строки (без переменных окружения).
func Parse(data string) (*Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(strings.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sample возвращает пример конфигурационного файла.
func Sample() string {
	return sampleConfig
}

// applyEnv переопределяет значения из окружения.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DB_URL")); v != "" {
		c.Database.URL = v
		c.Database.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("RABBITMQ_URL")); v != "" {
		c.RabbitMQ.URL = v
		c.RabbitMQ.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		c.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVEYOR_HTTP_ADDR")); v != "" {
		c.HTTP.Addr = v
	}
}

// MaxWait возвращает период перепроверки очередей.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Engine.MaxWaitMS) * time.Millisecond
}

// SinkTimeout возвращает таймаут одного Sink.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Engine.SinkTimeoutSeconds) * time.Second
}

// DialTimeout возвращает время ожидания RabbitMQ при старте.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.RabbitMQ.DialTimeoutSeconds) * time.Second
}

// ConnectorTimeout возвращает таймаут HTTP-коннектора.
func (c *Config) ConnectorTimeout() time.Duration {
	return time.Duration(c.HTTPConnector.TimeoutSeconds) * time.Second
}

// ShutdownTimeout возвращает время на graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutSeconds) * time.Second
}

// Spec собирает flow.Spec, разрешая имена обработчиков через handlers.
func (f Flow) Spec(handlers *flow.HandlerRegistry) (*flow.Spec, error) {
	pre, err := handlers.Resolve(f.Pre)
	if err != nil {
		return nil, fmt.Errorf("flow %s pre: %w", f.Name, err)
	}
	post, err := handlers.Resolve(f.Post)
	if err != nil {
		return nil, fmt.Errorf("flow %s post: %w", f.Name, err)
	}
	return &flow.Spec{
		Name:         f.Name,
		PreHandlers:  pre,
		PostHandlers: post,
		Connector:    f.Connector,
		MaxTimeout:   f.Timeout(),
		MaxRetry:     f.Retries(),
	}, nil
}

// Catalog регистрирует все flows конфигурации в новом каталоге.
func (c *Config) Catalog(handlers *flow.HandlerRegistry) (*flow.Catalog, error) {
	catalog := flow.NewCatalog()
	for _, f := range c.Flows {
		spec, err := f.Spec(handlers)
		if err != nil {
			return nil, err
		}
		if err := catalog.Register(spec); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}
