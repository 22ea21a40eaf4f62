package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_URL", "RABBITMQ_URL", "LOG_LEVEL", "LOG_FORMAT", "CONVEYOR_HTTP_ADDR"} {
		t.Setenv(key, "")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Engine.Router != RouterOrigin {
		t.Errorf("Engine.Router = %q, want %q", cfg.Engine.Router, RouterOrigin)
	}
	if cfg.MaxWait() != 100*time.Millisecond {
		t.Errorf("MaxWait = %v, want 100ms", cfg.MaxWait())
	}
	if len(cfg.Queues) != 2 {
		t.Fatalf("len(Queues) = %d, want 2", len(cfg.Queues))
	}
	if cfg.Queues[0].Name != "Follower:HANDLE" || cfg.Queues[1].Name != "Follower:EXECUTE" {
		t.Errorf("queue names = %q, %q", cfg.Queues[0].Name, cfg.Queues[1].Name)
	}
	if len(cfg.Workers) != 2 {
		t.Fatalf("len(Workers) = %d, want 2", len(cfg.Workers))
	}
	for _, w := range cfg.Workers {
		if w.Count != defaultWorkersPerKey {
			t.Errorf("worker %s count = %d, want %d", w.WorkKey, w.Count, defaultWorkersPerKey)
		}
	}
	if cfg.Database.Enabled || cfg.RabbitMQ.Enabled {
		t.Error("backends should be disabled by default")
	}
}

func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := Parse(Sample())
	if err != nil {
		t.Fatalf("Parse(Sample()): %v", err)
	}

	if len(cfg.Queues) != 3 {
		t.Errorf("len(Queues) = %d, want 3", len(cfg.Queues))
	}
	if !cfg.Queues[1].RateLimited || cfg.Queues[1].RateIntervalMS != 200 {
		t.Errorf("handle-slow queue = %+v, want rate limited 200ms", cfg.Queues[1])
	}
	if len(cfg.Schedules) != 1 {
		t.Fatalf("len(Schedules) = %d, want 1", len(cfg.Schedules))
	}

	req := cfg.Schedules[0].Request()
	if req.Flow != "send-message" || req.Identity.Host != "device.example.net" || req.Command.Content != "ping" {
		t.Errorf("schedule request = %+v", req)
	}
	cmd := req.Record().Command()
	if cmd.Category() != domain.CommandBuiltIn || cmd.RouteKey() != "POST" {
		t.Errorf("schedule command category=%s route=%s, want BUILT_IN/POST", cmd.Category(), cmd.RouteKey())
	}
	// В sample есть очередь :EXECUTE, и до неё flows доходят только при phase
	if cfg.Engine.Router != RouterPhase {
		t.Errorf("Engine.Router = %q, want %q", cfg.Engine.Router, RouterPhase)
	}

	catalog, err := cfg.Catalog(flow.DefaultHandlers())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	spec, err := catalog.Get("send-message")
	if err != nil {
		t.Fatalf("catalog.Get: %v", err)
	}
	if len(spec.PreHandlers) != 1 || len(spec.PostHandlers) != 2 {
		t.Errorf("handlers pre=%d post=%d, want 1 and 2", len(spec.PreHandlers), len(spec.PostHandlers))
	}
	if spec.MaxTimeout != 300*time.Second || spec.MaxRetry != 7 {
		t.Errorf("limits = %v/%d", spec.MaxTimeout, spec.MaxRetry)
	}
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://env/db")
	t.Setenv("LOG_LEVEL", "DEBUG")

	path := filepath.Join(t.TempDir(), "conveyor.toml")
	data := `
[http]
addr = ":9000"

[[flows]]
name = "ping"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("HTTP.Addr = %q, want :9000", cfg.HTTP.Addr)
	}
	if !cfg.Database.Enabled || cfg.Database.URL != "postgres://env/db" {
		t.Errorf("Database = %+v, want enabled from DB_URL", cfg.Database)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Flows[0].Connector != "http" {
		t.Errorf("flow connector = %q, want http", cfg.Flows[0].Connector)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse("[engine]\npoll = 5\n")
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Errorf("decode error should not be ErrInvalidConfig: %v", err)
	}
}

func TestFlowLimits(t *testing.T) {
	zero := 0
	tests := []struct {
		name        string
		flow        Flow
		wantTimeout time.Duration
		wantRetry   int
	}{
		{"defaults", Flow{}, flow.DefaultMaxTimeout, flow.DefaultMaxRetry},
		{"disabled", Flow{MaxTimeoutSeconds: &zero, MaxRetry: &zero}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flow.Timeout(); got != tt.wantTimeout {
				t.Errorf("Timeout() = %v, want %v", got, tt.wantTimeout)
			}
			if got := tt.flow.Retries(); got != tt.wantRetry {
				t.Errorf("Retries() = %d, want %d", got, tt.wantRetry)
			}
		})
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{
			name:    "bad log level",
			data:    "[log]\nlevel = \"loud\"\n",
			wantMsg: "log.level",
		},
		{
			name:    "bad router",
			data:    "[engine]\nrouter = \"random\"\n",
			wantMsg: "engine.router",
		},
		{
			name:    "unknown connector",
			data:    "[[flows]]\nname = \"mail\"\nconnector = \"smtp\"\n",
			wantMsg: "unknown connector \"smtp\"",
		},
		{
			name: "unknown schedule command category",
			data: `
[[flows]]
name = "ping"
[[schedules]]
name = "tick"
cron = "@hourly"
flow = "ping"
[schedules.identity]
host = "h"
[schedules.command]
category = "SEND_MESSAGE"
`,
			wantMsg: "unknown command.category",
		},
		{
			name:    "database without url",
			data:    "[database]\nenabled = true\n",
			wantMsg: "database.url",
		},
		{
			name: "duplicate queue names",
			data: `
[[queues]]
work_key = "Follower:HANDLE"
[[queues]]
work_key = "Follower:HANDLE"
`,
			wantMsg: "duplicate queue name",
		},
		{
			name:    "invalid work key",
			data:    "[[queues]]\nwork_key = \"Boss:HANDLE\"\n",
			wantMsg: "queues[0].work_key",
		},
		{
			name: "worker without queue",
			data: `
[[queues]]
work_key = "Follower:HANDLE"
[[workers]]
work_key = "Follower:EXECUTE"
count = 1
`,
			wantMsg: "no queue for work key",
		},
		{
			name:    "default key without queue",
			data:    "[[queues]]\nwork_key = \"Follower:EXECUTE\"\n",
			wantMsg: "default_work_key",
		},
		{
			name: "phase router without execute queue",
			data: `
[engine]
router = "phase"
[[queues]]
work_key = "Follower:HANDLE"
`,
			wantMsg: "requires a queue",
		},
		{
			name: "unknown handler",
			data: `
[[flows]]
name = "f"
pre = ["nope"]
`,
			wantMsg: "unknown handler",
		},
		{
			name: "invalid cron",
			data: `
[[flows]]
name = "f"
[[schedules]]
name = "s"
cron = "bad"
flow = "f"
[schedules.identity]
host = "h"
`,
			wantMsg: `schedules[0] "s"`,
		},
		{
			name: "schedule with unknown flow",
			data: `
[[schedules]]
name = "s"
cron = "@hourly"
flow = "missing"
[schedules.identity]
host = "h"
`,
			wantMsg: "unknown flow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Parse error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
