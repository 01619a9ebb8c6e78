package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestCtxKey struct{}
type executionCtxKey struct{}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithExecutionID adds the pipeline execution ID to context.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionCtxKey{}, executionID)
}

// ExecutionIDFromContext extracts the execution ID, or "".
func ExecutionIDFromContext(ctx context.Context) string {
	if e, ok := ctx.Value(executionCtxKey{}).(string); ok {
		return e
	}
	return ""
}

// ContextFields extracts correlation fields from context for log calls that
// cross component boundaries.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if executionID := ExecutionIDFromContext(ctx); executionID != "" {
		fields = append(fields, zap.String("execution_id", executionID))
	}
	return fields
}
