package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sgad.org/internal/audit"
	"sgad.org/internal/auth"
	"sgad.org/internal/obs"
)

// guard adapts a gate pipeline to chi middleware. Gate failures are rendered
// as JSON errors and counted; on success the request continues with the gate's context.
func (a *API) guard(gates ...auth.Gate) func(http.Handler) http.Handler {
	pipeline := auth.Chain(gates...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := pipeline(r.Context(), gateRequest(r))
			if err != nil {
				code := auth.CodeOf(err)
				obs.ObserveGateDenial(string(code))
				if code == auth.CodeInsufficientPermissions {
					a.audit.Record(ctx, audit.EventPermissionDenied, map[string]any{
						"path":   r.URL.Path,
						"method": r.Method,
					})
				}
				a.writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func gateRequest(r *http.Request) auth.Request {
	return auth.Request{
		Authorization: r.Header.Get("Authorization"),
		Param:         func(name string) string { return chi.URLParam(r, name) },
	}
}

// observedTokens counts verify and refresh outcomes.
type observedTokens struct {
	next TokenManager
}

func (o observedTokens) Verify(ctx context.Context, raw string) (auth.Principal, error) {
	p, err := o.next.Verify(ctx, raw)
	obs.ObserveTokenCheck("verify", outcome(err))
	return p, err
}

func (o observedTokens) Refresh(ctx context.Context, raw string) (auth.Token, auth.Principal, error) {
	tok, p, err := o.next.Refresh(ctx, raw)
	obs.ObserveTokenCheck("refresh", outcome(err))
	return tok, p, err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(auth.CodeOf(err))
}
