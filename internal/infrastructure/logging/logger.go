package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/surplusheater/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "surplusheater"

// Logger is a slog.Logger carrying the service and version fields.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the service logger from the logging section of the config.
// Debug forces the debug level whatever Level says.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newLogger(out, cfg, version)
}

func newLogger(out io.Writer, cfg config.LoggingConfig, version string) *Logger {
	level := levelOf(cfg.Level)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// levelOf maps a configured level name onto slog. Unknown names fall back to info.
func levelOf(name string) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// With returns a Logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every entry with the emitting component, e.g. "regulator".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON info logger used until the config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
