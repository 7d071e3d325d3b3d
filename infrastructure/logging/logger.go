// Package logging provides claimchain's structured logging wrapper, carrying
// trace IDs through context the way the rest of the stack does.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through a commit or view
// operation for log correlation.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// OwnerKey is the context key for an owner's fingerprint.
	OwnerKey ContextKey = "owner"
)

// Logger wraps logrus.Logger with claimchain's field conventions.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
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

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a logger entry carrying the service name and any
// trace/owner identifiers present on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if owner := ctx.Value(OwnerKey); owner != nil {
		entry = entry.WithField("owner", owner)
	}
	return entry
}

// WithFields creates a logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a logger entry carrying an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// LogGrantWithoutClaim records the one recovered condition the commit
// protocol allows: a grant naming a label with no matching pending claim.
// The grant cycle for that reader is skipped rather than failing the whole
// commit.
func (l *Logger) LogGrantWithoutClaim(ctx context.Context, readerFingerprint string, label []byte) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"reader": readerFingerprint,
		"label":  string(label),
	}).Warn("grant references a label with no pending claim; skipping remaining grants for this reader")
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithOwner adds an owner fingerprint to the context.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}
