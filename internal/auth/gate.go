package auth

import (
	"context"
	"slices"
	"strings"
)

// Request is the transport-neutral view of an incoming call that gates inspect.
type Request struct {
	// Authorization is the raw Authorization header value.
	Authorization string
	// Param returns a named path parameter, or "" when absent.
	Param func(name string) string
}

func (r Request) param(name string) string {
	if r.Param == nil {
		return ""
	}
	return r.Param(name)
}

// Gate inspects a request and either returns an updated context or an error
// that should end the request.
type Gate func(ctx context.Context, req Request) (context.Context, error)

// Chain runs gates in order and stops at the first failure.
func Chain(gates ...Gate) Gate {
	return func(ctx context.Context, req Request) (context.Context, error) {
		for _, g := range gates {
			next, err := g(ctx, req)
			if err != nil {
				return ctx, err
			}
			ctx = next
		}
		return ctx, nil
	}
}

// Authenticate requires a valid bearer token and attaches the resolved Principal.
func Authenticate(v Verifier) Gate {
	return func(ctx context.Context, req Request) (context.Context, error) {
		raw, ok := BearerToken(req.Authorization)
		if !ok {
			return ctx, ErrMissingToken
		}
		p, err := v.Verify(ctx, raw)
		if err != nil {
			return ctx, err
		}
		return WithPrincipal(ctx, p, raw), nil
	}
}

// Optional attaches a Principal when the request carries a valid bearer token
// and otherwise lets the request through anonymously.
func Optional(v Verifier) Gate {
	return func(ctx context.Context, req Request) (context.Context, error) {
		raw, ok := BearerToken(req.Authorization)
		if !ok {
			return ctx, nil
		}
		p, err := v.Verify(ctx, raw)
		if err != nil {
			return ctx, nil
		}
		return WithPrincipal(ctx, p, raw), nil
	}
}

// RequireRole admits principals holding any of roles. It must run after Authenticate.
func RequireRole(roles ...Role) Gate {
	allowed := slices.Clone(roles)
	return func(ctx context.Context, _ Request) (context.Context, error) {
		p, ok := PrincipalFromContext(ctx)
		if !ok {
			return ctx, ErrUnauthenticated
		}
		if !p.Role.Valid() || !slices.Contains(allowed, p.Role) {
			return ctx, insufficientPermissions(allowed)
		}
		return ctx, nil
	}
}

// RequireSelfOrAdmin admits the principal whose id matches the path parameter
// named param, and any administrator or president.
func RequireSelfOrAdmin(param string) Gate {
	return func(ctx context.Context, req Request) (context.Context, error) {
		p, ok := PrincipalFromContext(ctx)
		if !ok {
			return ctx, ErrUnauthenticated
		}
		if p.Role.Elevated() {
			return ctx, nil
		}
		if target := req.param(param); target != "" && target == p.ID {
			return ctx, nil
		}
		return ctx, ErrInsufficientPermissions
	}
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
