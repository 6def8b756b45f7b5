package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sgad.org/internal/audit"
	"sgad.org/internal/auth"
	"sgad.org/internal/obs"
)

// ServiceName identifies this service in health and info responses.
const ServiceName = "sgad-auth"

const maxBodyBytes = 1 << 20

// ReadyChecker reports whether the service can take traffic.
type ReadyChecker interface {
	Check(ctx context.Context) error
}

// Pinger is implemented by the credential stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing store.
type ReadyProbe struct {
	Store   Pinger
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	return rp.Store.Ping(ctx)
}

// Authenticator performs password login.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
}

// TokenManager verifies and refreshes bearer tokens.
type TokenManager interface {
	auth.Verifier
	Refresh(ctx context.Context, raw string) (auth.Token, auth.Principal, error)
}

// UserLookup resolves users by id.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Login       Authenticator
	Tokens      TokenManager
	Users       UserLookup
	Ready       ReadyChecker
	Audit       *audit.Recorder
	Log         zerolog.Logger
	Version     string
	CORSOrigins []string
	LoginLimit  RateLimitConfig
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	login   Authenticator
	tokens  TokenManager
	users   UserLookup
	ready   ReadyChecker
	audit   *audit.Recorder
	log     zerolog.Logger
	version string
}

func New(d Deps) *API {
	a := &API{
		login:   d.Login,
		tokens:  observedTokens{d.Tokens},
		users:   d.Users,
		ready:   d.Ready,
		audit:   d.Audit,
		log:     d.Log,
		version: d.Version,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}

	r := chi.NewRouter()
	r.Use(
		RequestID,
		middleware.Recoverer,
		obs.Instrument,
		LoggingJSON(d.Log),
		SecurityHeaders,
		CORS(d.CORSOrigins),
		MaxBodyBytes(maxBodyBytes),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	authenticate := a.guard(auth.Authenticate(a.tokens))
	optional := a.guard(auth.Optional(a.tokens))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(RateLimit(d.LoginLimit)).Post("/login", a.handleLogin)
		r.With(authenticate).Get("/verify", a.handleVerify)
		r.Post("/refresh", a.handleRefresh)
		r.With(optional).Post("/logout", a.handleLogout)
		r.With(authenticate).Post("/check-permission", a.handleCheckPermission)
		r.With(optional).Get("/me", a.handleMe)
	})
	r.With(a.guard(auth.Authenticate(a.tokens), auth.RequireSelfOrAdmin("userId"))).
		Get("/api/users/{userId}", a.handleGetUser)
	r.With(a.guard(auth.Authenticate(a.tokens), auth.RequireRole(auth.RoleAdministrator, auth.RolePresident))).
		Get("/api/admin/roles", a.handleRoles)

	a.router = r
	return a
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": ServiceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		a.log.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    ServiceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
