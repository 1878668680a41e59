// Package log builds the process-wide structured logger. Each binary owns
// one Logger bound to its component name; code deeper in the tree logs
// through the slog default instead of threading a logger around.
package log

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger that stamps its component onto every record, so
// lines from the server, the worker and shared packages stay distinguishable
// in merged output.
type Logger struct {
	*slog.Logger
	component string
}

// Config selects the level and component for a new logger. Handler is
// optional; nil means text output on stdout, which is what both binaries
// run with.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// New builds a logger from the config.
func New(cfg Config) *Logger {
	handler := cfg.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	}
	return &Logger{Logger: slog.New(handler), component: cfg.Component}
}

// SetDefault routes the package-level slog helpers through this logger.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.stamp(args)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.stamp(args)...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, l.stamp(args)...)
}

func (l *Logger) stamp(args []any) []any {
	return append([]any{FieldComponent, l.component}, args...)
}
