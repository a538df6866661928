package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	renderIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRenderID tags ctx with the id of the render it belongs to.
func WithRenderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, renderIDKey, id)
}

// RenderID returns the render id stored in ctx, or "".
func RenderID(ctx context.Context) string {
	id, _ := ctx.Value(renderIDKey).(string)
	return id
}

// Attrs returns the correlation ids present in ctx as slog key/value pairs,
// ready to be spread into a logging call.
func Attrs(ctx context.Context) []any {
	var out []any
	if id := RequestID(ctx); id != "" {
		out = append(out, "request_id", id)
	}
	if id := RenderID(ctx); id != "" {
		out = append(out, "render_id", id)
	}
	return out
}
