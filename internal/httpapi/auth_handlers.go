package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sgad.org/internal/audit"
	"sgad.org/internal/auth"
	"sgad.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      auth.Principal `json:"user"`
	Token     string         `json:"token"`
	ExpiresIn int64          `json:"expiresIn"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type verifyResponse struct {
	User       auth.Principal `json:"user"`
	TokenValid bool           `json:"tokenValid"`
}

type checkPermissionRequest struct {
	RequiredRole string `json:"requiredRole"`
}

type checkPermissionResponse struct {
	HasPermission bool      `json:"hasPermission"`
	UserRole      auth.Role `json:"userRole"`
	RequiredRole  auth.Role `json:"requiredRole"`
}

type meResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *auth.Principal `json:"user,omitempty"`
}

type roleInfo struct {
	Name  auth.Role `json:"name"`
	Level int       `json:"level"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		obs.ObserveLogin(string(auth.CodeValidation))
		writeError(w, r, http.StatusBadRequest, string(auth.CodeValidation), err.Error())
		return
	}

	res, err := a.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.ObserveLogin(outcome(err))
		a.audit.Record(r.Context(), audit.EventLoginFailed, map[string]any{
			"email":  auth.NormalizeEmail(req.Email),
			"reason": string(auth.CodeOf(err)),
		})
		a.writeAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	ctx := auth.WithPrincipal(r.Context(), res.Principal, "")
	a.audit.Record(ctx, audit.EventLoginSucceeded, map[string]any{"jti": res.Token.ID})

	writeJSON(w, http.StatusOK, loginResponse{
		User:      res.Principal,
		Token:     res.Token.Value,
		ExpiresIn: int64(res.Token.ExpiresIn / time.Second),
		ExpiresAt: res.Token.ExpiresAt,
	})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{User: p, TokenValid: true})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		a.writeAuthError(w, r, auth.ErrMissingToken)
		return
	}
	tok, p, err := a.tokens.Refresh(r.Context(), raw)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	ctx := auth.WithPrincipal(r.Context(), p, "")
	a.audit.Record(ctx, audit.EventTokenRefreshed, map[string]any{"jti": tok.ID})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     tok.Value,
		ExpiresIn: int64(tok.ExpiresIn / time.Second),
		ExpiresAt: tok.ExpiresAt,
	})
}

// handleLogout acknowledges the request. Tokens are not revoked and remain
// valid until they expire; clients are expected to discard them.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.PrincipalFromContext(r.Context()); ok {
		a.audit.Record(r.Context(), audit.EventLogout, nil)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (a *API) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	var req checkPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, string(auth.CodeValidation), err.Error())
		return
	}
	if strings.TrimSpace(req.RequiredRole) == "" {
		writeError(w, r, http.StatusBadRequest, string(auth.CodeValidation), "requiredRole is required")
		return
	}
	required, err := auth.ParseRole(req.RequiredRole)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(auth.CodeValidation), "requiredRole must be one of arbitro, administrador, presidente")
		return
	}
	writeJSON(w, http.StatusOK, checkPermissionResponse{
		HasPermission: auth.HasPermission(p.Role, required),
		UserRole:      p.Role,
		RequiredRole:  required,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Authenticated: true, User: &p})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.FindByID(r.Context(), chi.URLParam(r, "userId"))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "user not found")
		return
	}
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": auth.NewPrincipal(user)})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles := auth.Roles()
	out := make([]roleInfo, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleInfo{Name: role, Level: role.Level()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}
