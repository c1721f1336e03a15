package providers

import "context"

type requestIDKey struct{}

// WithRequestID attaches the gateway request id to the context so the HTTP
// layer can forward it to upstreams.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extracts the gateway request id, or "" when unset.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
