package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"github.com/google/uuid"
)

// LogContext holds structured logging context information.
type LogContext struct {
	RunNumber int
	TraceID   string
	Unit      string
	Format    string
	Stage     string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithRun starts the logging context of one orchestrator run. A trace id
// already on ctx is kept, otherwise a fresh one is generated.
func WithRun(ctx context.Context, runNumber int) context.Context {
	lc := extractLogContext(ctx)
	lc.RunNumber = runNumber
	if lc.TraceID == "" {
		lc.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, logContextKey, lc)
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	lc := extractLogContext(ctx)
	lc.TraceID = traceID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithUnit adds a documentation unit id to the context.
func WithUnit(ctx context.Context, unitID string) context.Context {
	lc := extractLogContext(ctx)
	lc.Unit = unitID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithFormat adds an output format to the context.
func WithFormat(ctx context.Context, format string) context.Context {
	lc := extractLogContext(ctx)
	lc.Format = format
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the LogContext stored in ctx, or the zero value.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// Attrs returns slog attributes for the populated fields of the context's LogContext.
func Attrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.RunNumber != 0 {
		attrs = append(attrs, logfields.RunNumber(lc.RunNumber))
	}
	if lc.TraceID != "" {
		attrs = append(attrs, logfields.TraceID(lc.TraceID))
	}
	if lc.Unit != "" {
		attrs = append(attrs, logfields.Unit(lc.Unit))
	}
	if lc.Format != "" {
		attrs = append(attrs, logfields.Format(lc.Format))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}

	return attrs
}

func logContext(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, attrs []slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.LogAttrs(ctx, level, msg, append(Attrs(ctx), attrs...)...)
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logContext(ctx, logger, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logContext(ctx, logger, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logContext(ctx, logger, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logContext(ctx, logger, slog.LevelDebug, msg, attrs)
}
