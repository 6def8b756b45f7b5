package auth

import "context"

type identityKey struct{}

// identity is what the authentication gate attaches to a request.
type identity struct {
	principal Principal
	token     string
}

// WithPrincipal returns a copy of ctx carrying principal and the raw bearer token it was verified from.
// token may be empty when the principal did not come from a bearer credential.
func WithPrincipal(ctx context.Context, principal Principal, token string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{principal: principal, token: token})
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	id, ok := identityFrom(ctx)
	return id.principal, ok
}

// TokenFromContext returns the bearer token the principal was verified from.
func TokenFromContext(ctx context.Context) (string, bool) {
	id, ok := identityFrom(ctx)
	if !ok || id.token == "" {
		return "", false
	}
	return id.token, true
}

func identityFrom(ctx context.Context) (identity, bool) {
	if ctx == nil {
		return identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}
