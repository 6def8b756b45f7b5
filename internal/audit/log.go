// Package audit writes security-relevant events as structured log lines.
package audit

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"sgad.org/internal/auth"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext returns the request identifier, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Event names.
const (
	EventLoginSucceeded   = "auth.login.succeeded"
	EventLoginFailed      = "auth.login.failed"
	EventTokenRefreshed   = "auth.token.refreshed"
	EventLogout           = "auth.logout"
	EventPermissionDenied = "auth.permission.denied"
)

// Recorder emits audit events on a dedicated logger.
type Recorder struct {
	log zerolog.Logger
}

func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{log: log.With().Str("type", "audit").Logger()}
}

// Record writes event enriched with the request id and the authenticated
// user, if any. Callers must not pass secrets in fields.
func (r *Recorder) Record(ctx context.Context, event string, fields map[string]any) {
	if r == nil {
		return
	}
	e := r.log.Info().Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		e = e.Str("user_id", p.ID).Str("role", p.Role.String())
	}
	if len(fields) > 0 {
		e = e.Fields(fields)
	}
	e.Msg("audit")
}
