package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sidKey       contextKey = "sid"
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

// WithSID returns a new context carrying the browser session id, so log
// records emitted anywhere below the bridge correlate to one client.
func WithSID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sidKey, sid)
}

// SID extracts the session id from the context, or an empty string.
func SID(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey).(string)
	return sid
}
