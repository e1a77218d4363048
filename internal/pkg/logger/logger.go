// Package logger is the gateway's slog setup. Records carry the service name,
// and FromContext adds the request and job ids that middleware and the job
// service store in the context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	jobIDKey
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	// Level is one of debug, info, warn, error. Anything else is info.
	Level string
	// Format is "text" or "json" (default).
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

// utcTime renders record timestamps as RFC 3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// NewDefault is used before configuration is available.
func NewDefault() *Logger {
	return New(Config{Level: "info", ServiceName: "vgate"})
}

func NewNop() *Logger {
	return New(Config{Level: "error", Output: io.Discard})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithQueue tags records with the publisher's backend and queue identity.
func (l *Logger) WithQueue(backend, queue string) *Logger {
	return l.with("queue_backend", backend, "queue", queue)
}

// FromContext adds request_id and job_id when ctx carries them.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	var args []any
	if id := RequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if id := JobID(ctx); id != "" {
		args = append(args, "job_id", id)
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

// LogError logs err at error level with the caller's file and line.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", "file", file, "line", line))
	}
	args = append(args, "error", err.Error())
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
