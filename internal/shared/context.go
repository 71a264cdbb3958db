package shared

import "context"

// Identity describes the authenticated caller as seen by the engine.
// Chapter is opaque tenant scoping carried for downstream consumers; the
// engine never interprets it.
type Identity struct {
	UserID  int64
	Role    string
	Chapter string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
