// Package logging provides structured logging for the gateway. It wraps
// log/slog with context-aware enrichment (correlation, project, version and
// scope identifiers) and helpers for the cache, command and sync events.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for request correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// ProjectIDKey is the context key for project IDs.
	ProjectIDKey contextKey = "project_id"
	// VersionIDKey is the context key for workspace versions.
	VersionIDKey contextKey = "version_id"
	// ScopeKeyKey is the context key for undo/redo scope keys.
	ScopeKeyKey contextKey = "scope_key"
)

// enrichedKeys lists the context keys copied onto every *Context log call, in order.
var enrichedKeys = []contextKey{CorrelationIDKey, ProjectIDKey, VersionIDKey, ScopeKeyKey}

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger. Loggers derived with With or WithGroup share the
// parent's level.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration. Only
// the first call has an effect.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	return Init(DefaultConfig())
}

// OrDefault returns l, or the global logger when l is nil.
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return Default()
	}
	return l
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// ParseLevel converts a case-insensitive level name. Unknown names map to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel dynamically changes the log level.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return parseLevel(level) >= l.level.Level()
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slogger: l.slogger.WithGroup(name),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, enrichArgs(ctx, args)...)
}

// enrichArgs prepends the identifiers stored in ctx to args.
func enrichArgs(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	enriched := make([]any, 0, len(args)+2*len(enrichedKeys))
	for _, key := range enrichedKeys {
		if v := ctx.Value(key); v != nil {
			enriched = append(enriched, string(key), v)
		}
	}
	return append(enriched, args...)
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithProjectID adds a project ID to the context.
func WithProjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, id)
}

// WithVersionID adds a rendered version ID to the context.
func WithVersionID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, VersionIDKey, v)
}

// WithScopeKey adds a rendered scope key to the context.
func WithScopeKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ScopeKeyKey, key)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if s, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return s
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogLoad logs a completed workspace load.
func LogLoad(ctx context.Context, logger *Logger, projectID, versionID string, duration time.Duration) {
	logger.InfoContext(ctx, "workspace loaded",
		"project", projectID,
		"version", versionID,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogLoadFailed logs a failed workspace load.
func LogLoadFailed(ctx context.Context, logger *Logger, projectID, versionID string, err error) {
	logger.ErrorContext(ctx, "workspace load failed",
		"project", projectID,
		"version", versionID,
		"error", err.Error(),
	)
}

// LogEviction logs a workspace handle leaving the cache.
func LogEviction(logger *Logger, projectID, versionID, reason string) {
	logger.Debug("workspace evicted",
		"project", projectID,
		"version", versionID,
		"reason", reason,
	)
}

// LogCommand logs the outcome of an apply, undo or redo.
func LogCommand(ctx context.Context, logger *Logger, op, kind string, err error) {
	if err != nil {
		logger.WarnContext(ctx, "command rejected",
			"op", op,
			"kind", kind,
			"error", err.Error(),
		)
		return
	}
	logger.DebugContext(ctx, "command executed",
		"op", op,
		"kind", kind,
	)
}

// LogSyncTransition logs a sync state change.
func LogSyncTransition(logger *Logger, projectID, state string) {
	logger.Debug("sync state changed",
		"project", projectID,
		"state", state,
	)
}

// LogSyncComplete logs a successful sync run.
func LogSyncComplete(ctx context.Context, logger *Logger, projectID, trigger string, duration time.Duration) {
	logger.InfoContext(ctx, "project synced",
		"project", projectID,
		"trigger", trigger,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogSyncFailed logs a failed sync run.
func LogSyncFailed(ctx context.Context, logger *Logger, projectID, trigger string, err error) {
	logger.ErrorContext(ctx, "project sync failed",
		"project", projectID,
		"trigger", trigger,
		"error", err.Error(),
	)
}
