package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Ключи атрибутов, общие для всех компонентов.
const (
	KeyFlowID   = "flow_id"
	KeyWorkKey  = "work_key"
	KeyRecordID = "record_id"
)

// ParseLevel разбирает уровень в формате slog ("debug", "WARN", "info+2").
// "warning" понимается как warn. Всё нераспознанное даёт info.
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetupLogger создаёт глобальный логгер в stdout. format: "json" или "text".
func SetupLogger(level, format string) *slog.Logger {
	return NewLogger(os.Stdout, level, format, true)
}

// NewLogger создаёт логгер поверх w. На уровне debug в записи попадает источник.
func NewLogger(w io.Writer, level, format string, setDefault bool) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(h)
	if setDefault {
		slog.SetDefault(logger)
	}
	return logger
}

// NopLogger отбрасывает все записи.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста, иначе slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func WithFlowID(logger *slog.Logger, flowID string) *slog.Logger {
	return logger.With(KeyFlowID, flowID)
}

func WithWorkKey(logger *slog.Logger, workKey string) *slog.Logger {
	return logger.With(KeyWorkKey, workKey)
}

func WithRecordID(logger *slog.Logger, recordID string) *slog.Logger {
	return logger.With(KeyRecordID, recordID)
}
