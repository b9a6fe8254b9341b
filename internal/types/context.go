package types

import "context"

// ctxKey is a private type for context keys to avoid collisions with keys
// defined in other packages.
type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyActor
)

// Actor is the authenticated caller attached to a request context by the
// auth middleware. The scheduler core receives only the identifiers it
// needs; token issuance and verification live in the auth package.
type Actor struct {
	UserID string
	Email  string
	Name   string
}

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// GetRequestID extracts the request correlation ID from the context.
// Returns an empty string if none is set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// GetActor extracts the authenticated actor from the context. The boolean is
// false when the request was not authenticated.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}
