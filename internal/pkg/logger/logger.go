// Package logger is the structured logger shared by the CLI, the worker and
// the status API. Records are JSON on stderr unless LOG_FORMAT=text, so a
// command's stdout stays parseable.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	RunIDKey     contextKey = "run_id"
	// SampleIDKey carries the {task}_{index} id of the sample in flight.
	SampleIDKey contextKey = "sample_id"
)

// contextKeys are copied onto records by FromContext, in this order.
var contextKeys = []contextKey{RequestIDKey, RunIDKey, SampleIDKey}

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	// Output defaults to os.Stderr.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       envOr("LOG_LEVEL", "info"),
		Format:      envOr("LOG_FORMAT", "json"),
		Output:      os.Stderr,
		AddSource:   envOr("LOG_SOURCE", "false") == "true",
		ServiceName: envOr("SERVICE_NAME", "scenegen"),
	}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String(key, value))}
}

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }
func (l *Logger) WithRequestID(id string) *Logger        { return l.with(string(RequestIDKey), id) }
func (l *Logger) WithRunID(id string) *Logger            { return l.with(string(RunIDKey), id) }
func (l *Logger) WithSampleID(id string) *Logger         { return l.with(string(SampleIDKey), id) }

// WithFields attaches every entry of fields, typically errors.GetFields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// FromContext attaches the request, run and sample ids found in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	for _, k := range contextKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			out = out.with(string(k), v)
		}
	}
	return out
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

func ContextWithSampleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SampleIDKey, id)
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
	}
	return a
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
