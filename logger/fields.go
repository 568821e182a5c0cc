package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across the harvester.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"
	FieldHandler   = "handler"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"

	// Status
	FieldStatus = "status"

	// Network
	FieldAddress = "address"
	FieldURL     = "url"

	// Harvesting
	FieldSource    = "source"
	FieldFormat    = "format"
	FieldGraph     = "graph"
	FieldTerm      = "term"
	FieldValidator = "validator"
	FieldStrict    = "strict"
	FieldTriples   = "num_triples"
)

type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
