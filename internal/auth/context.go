package auth

import "context"

type contextKey string

const identityContextKey contextKey = "materna_identity"

// Identity is the verified caller, derived once per request from the session
// token and the consent flags. Never cached beyond the request lifetime.
type Identity struct {
	UserID         string
	ConsentGranted bool
	AIEnabled      bool
}

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
