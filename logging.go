package bkmark

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const correlationIDKey ctxKey = 0

// NewLogger creates the service's root logger.
func NewLogger(service string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// WithCorrelationID attaches a correlation id to the context. An empty id
// is replaced with a fresh uuid so downstream calls always carry one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id carried by the context, or
// "no-correlation-id" when the request arrived without one.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return "no-correlation-id"
}

// RequestLogger enriches a logger with the context's correlation id.
func RequestLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	return logger.With().Str("correlation_id", CorrelationID(ctx)).Logger()
}
