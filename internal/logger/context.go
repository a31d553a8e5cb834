package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// requestIDKey is the context key for the HTTP request ID.
var requestIDKey = contextKey{}

// deliveryIDKey is the context key for the inbound delivery ID.
type deliveryKey struct{}

var deliveryIDKey = deliveryKey{}

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

// WithDeliveryID returns a new context carrying the delivery ID of the
// inbound event, so every log record downstream of the gateway can be
// correlated back to the webhook that caused it.
func WithDeliveryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliveryIDKey, id)
}

// DeliveryID extracts the delivery ID from the context.
// Returns an empty string if none is set.
func DeliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryIDKey).(string)
	return id
}
