package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UsernameKey  ContextKey = "username"
	ProjectIDKey ContextKey = "project_id"
)

// contextAttrs is the order in which context values are attached.
var contextAttrs = []ContextKey{RequestIDKey, UsernameKey, ProjectIDKey}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init installs the default slog logger writing to stdout.
func Init(cfg *Config) {
	slog.SetDefault(New(os.Stdout, cfg))
}

// New builds a logger for w. Unknown levels fall back to info.
func New(w io.Writer, cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithProjectID tags ctx so that later log lines carry the project.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// Detach returns base carrying the logging attributes of from, for work that
// outlives the request it started in.
func Detach(base, from context.Context) context.Context {
	for _, key := range contextAttrs {
		if v, ok := from.Value(key).(string); ok && v != "" {
			base = context.WithValue(base, key, v)
		}
	}
	return base
}

// WithContext returns the default logger with request-scoped attributes.
func WithContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	for _, key := range contextAttrs {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			l = l.With(string(key), v)
		}
	}
	return l
}

func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
