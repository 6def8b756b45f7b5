package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"sgad.org/internal/audit"
	"sgad.org/internal/auth"
)

// Codes for failures that do not originate in the auth package.
const (
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeRateLimited      = "RATE_LIMITED"
)

type errorBody struct {
	Error        string      `json:"error"`
	Message      string      `json:"message"`
	AllowedRoles []auth.Role `json:"allowedRoles,omitempty"`
	RequestID    string      `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   msg,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// statusFor maps an auth error code to its HTTP status. Every code that is not
// a validation, authorization or internal failure is an authentication failure.
func statusFor(code auth.Code) int {
	switch code {
	case auth.CodeValidation:
		return http.StatusBadRequest
	case auth.CodeInsufficientPermissions:
		return http.StatusForbidden
	case auth.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// writeAuthError renders err. Internal causes are logged and never sent to the client.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		authErr = &auth.Error{Code: auth.CodeInternal, Message: auth.ErrInternal.Message, Err: err}
	}
	status := statusFor(authErr.Code)
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).
			Str("request_id", audit.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("auth request failed")
	}
	writeJSON(w, status, errorBody{
		Error:        string(authErr.Code),
		Message:      authErr.Message,
		AllowedRoles: authErr.AllowedRoles,
		RequestID:    audit.RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
