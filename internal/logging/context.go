package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type runCtxKey struct{}
type documentCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if doc := DocumentFromContext(ctx); doc != "" {
		fields = append(fields, zap.String("document", doc))
	}

	return fields
}

// WithRunID tags the context with an ingestion or query run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the run identifier from context.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithDocument tags the context with the source document currently processed.
func WithDocument(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, documentCtxKey{}, name)
}

// DocumentFromContext extracts the source document name from context.
func DocumentFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(documentCtxKey{}).(string); ok {
		return name
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
