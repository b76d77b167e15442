package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	jobIDKey    contextKey = "job_id"
	itemIDKey   contextKey = "item_id"
	loggerKey   contextKey = "logger"
)

// GenerateCorrelationID returns a short, human-scannable id for grouping log
// lines that belong to the same ad hoc operation.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithJobID attaches a job ID to ctx for log correlation across the
// job engine's worker goroutines.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// ContextWithItemID attaches an item ID to ctx.
func ContextWithItemID(ctx context.Context, itemID string) context.Context {
	return context.WithValue(ctx, itemIDKey, itemID)
}

func jobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

func itemIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(itemIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a pre-configured logger in ctx.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func loggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger enriched with whatever job_id/item_id are present on
// ctx. Use this inside the job engine and anything it calls.
//
//	logging.Ctx(ctx).Info().Msg("attributes resolved")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := loggerFromContext(ctx).With().Logger()
	if jobID := jobIDFromContext(ctx); jobID != "" {
		l = l.With().Str("job_id", jobID).Logger()
	}
	if itemID := itemIDFromContext(ctx); itemID != "" {
		l = l.With().Str("item_id", itemID).Logger()
	}
	return &l
}

// WithComponent creates a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
