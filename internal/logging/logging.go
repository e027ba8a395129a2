// Package logging provides the structured logger and the context keys used to
// carry request identity across handlers.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey carries the authenticated user id.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated user role.
	RoleKey contextKey = "role"
)

// Logger wraps zerolog with context-aware field extraction.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing JSON to w at the given level.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Default returns a logger writing to stderr at the level from LOG_LEVEL.
func Default() *Logger {
	return New(os.Stderr, os.Getenv("LOG_LEVEL"))
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithContext returns an Entry carrying the identity fields found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Entry {
	e := &Entry{zl: l.zl}
	if v := GetTraceID(ctx); v != "" {
		e.zl = e.zl.With().Str("trace_id", v).Logger()
	}
	if v := GetUserID(ctx); v != "" {
		e.zl = e.zl.With().Str("user_id", v).Logger()
	}
	if v := GetRole(ctx); v != "" {
		e.zl = e.zl.With().Str("role", v).Logger()
	}
	return e
}

// WithError returns an Entry carrying err.
func (l *Logger) WithError(err error) *Entry {
	return &Entry{zl: l.zl.With().Err(err).Logger()}
}

// WithFields returns an Entry carrying the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{zl: l.zl.With().Fields(fields).Logger()}
}

// Info logs at info level.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs at error level.
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Debug logs at debug level.
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

// LogRequest logs one completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.WithContext(ctx).WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("request completed")
}

// LogSecurityEvent logs an auth or rate-limit relevant event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).WithFields(map[string]interface{}{"event": event}).Warn("security event")
}

// Entry is a logger with bound fields.
type Entry struct {
	zl zerolog.Logger
}

// WithContext adds identity fields from ctx.
func (e *Entry) WithContext(ctx context.Context) *Entry {
	l := &Logger{zl: e.zl}
	return l.WithContext(ctx)
}

// WithError adds err to the entry.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{zl: e.zl.With().Err(err).Logger()}
}

// WithFields adds fields to the entry.
func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{zl: e.zl.With().Fields(fields).Logger()}
}

// Info logs at info level.
func (e *Entry) Info(msg string) { e.zl.Info().Msg(msg) }

// Warn logs at warn level.
func (e *Entry) Warn(msg string) { e.zl.Warn().Msg(msg) }

// Error logs at error level.
func (e *Entry) Error(msg string) { e.zl.Error().Msg(msg) }

// Debug logs at debug level.
func (e *Entry) Debug(msg string) { e.zl.Debug().Msg(msg) }

// NewTraceID returns a fresh trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRole stores the authenticated role in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	return context.WithValue(ctx, RoleKey, role)
}

// GetTraceID extracts the trace id from ctx.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// GetUserID extracts the user id from ctx.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetRole extracts the role from ctx.
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}
