// Package logging provides structured logging with trace-ID propagation for
// the bot's pipeline stages (ingest, resolve, predictive, execute): a thin
// wrapper around logrus that stamps every entry with a component name and,
// when present, a scan/trace ID pulled from context.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys owned by this package.
type ContextKey string

const (
	// TraceIDKey identifies a single scan/evaluation across log lines.
	TraceIDKey ContextKey = "trace_id"
	// BlockKey identifies the logical block tag an operation pertains to.
	BlockKey ContextKey = "block"
)

// Logger wraps logrus.Logger, stamping every entry with a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component, level, and format ("json" or
// "text").
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json".
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry pre-populated with the component name and,
// when present in ctx, the trace ID of the scan/evaluation in progress.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if block := ctx.Value(BlockKey); block != nil {
		entry = entry.WithField("block", block)
	}
	return entry
}

// WithFields returns an entry with the component name plus the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns an entry with the component name plus the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// LogRejection logs a budget/dedup/gate rejection at debug level, the level
// the error-handling design mandates for normal control-flow rejections
// (never surfaced as errors, always counted in metrics by the caller).
func (l *Logger) LogRejection(ctx context.Context, reason string, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["reason"] = reason
	entry.WithFields(fields).Debug("rejected")
}

// Context helpers.

// NewTraceID generates a new trace ID for a scan or evaluation.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithBlock attaches a block tag to ctx.
func WithBlock(ctx context.Context, block uint64) context.Context {
	return context.WithValue(ctx, BlockKey, block)
}

// Global logger instance, set by InitDefault or lazily by Default.
var defaultLogger *Logger

// InitDefault initializes the process-wide default logger.
func InitDefault(component, level, format string) {
	defaultLogger = New(component, level, format)
}

// Default returns the process-wide logger, creating a fallback if
// InitDefault was never called (keeps library code usable in tests).
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("liquidator", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders a duration as milliseconds with two decimal places,
// used in log fields and summary lines throughout the pipeline.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
