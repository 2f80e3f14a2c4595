package logger

import "context"

type contextKey string

const (
	invocationIDKey contextKey = "invocation_id"
	requestIDKey    contextKey = "request_id"
)

// ContextWithInvocationID stores the invocation ID used to correlate every
// log line produced by one pipeline invocation.
func ContextWithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// InvocationID returns the invocation ID stored in ctx, or "".
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}

// ContextWithRequestID stores the transport-level request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
