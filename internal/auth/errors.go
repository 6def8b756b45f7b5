package auth

import (
	"errors"
	"fmt"
)

// Code classifies an auth failure. Codes are stable and safe to expose to clients.
type Code string

const (
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeAccountInactive         Code = "ACCOUNT_INACTIVE"
	CodeMissingToken            Code = "MISSING_TOKEN"
	CodeTokenMalformed          Code = "TOKEN_MALFORMED"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeSubjectNotFound         Code = "SUBJECT_NOT_FOUND"
	CodeSubjectInactive         Code = "SUBJECT_INACTIVE"
	CodeSubjectInvalid          Code = "SUBJECT_INVALID"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is the error type returned by every auth operation.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code         Code
	Message      string
	AllowedRoles []Role
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation              = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrInvalidCredentials      = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrAccountInactive         = &Error{Code: CodeAccountInactive, Message: "account is inactive, contact an administrator"}
	ErrMissingToken            = &Error{Code: CodeMissingToken, Message: "access token is required"}
	ErrTokenMalformed          = &Error{Code: CodeTokenMalformed, Message: "invalid token"}
	ErrTokenExpired            = &Error{Code: CodeTokenExpired, Message: "token has expired"}
	ErrSubjectNotFound         = &Error{Code: CodeSubjectNotFound, Message: "user no longer exists"}
	ErrSubjectInactive         = &Error{Code: CodeSubjectInactive, Message: "user is inactive"}
	ErrSubjectInvalid          = &Error{Code: CodeSubjectInvalid, Message: "user is invalid or inactive"}
	ErrUnauthenticated         = &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrInsufficientPermissions = &Error{Code: CodeInsufficientPermissions, Message: "insufficient permissions"}
	ErrInternal                = &Error{Code: CodeInternal, Message: "internal error"}
)

var (
	// ErrUserNotFound is returned by CredentialStore implementations when no user matches.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrEmailTaken is returned by CreateUser when the normalized email already exists.
	ErrEmailTaken = errors.New("auth: email already registered")
)

func validationError(msg string) error {
	return &Error{Code: CodeValidation, Message: msg}
}

func internalError(err error) error {
	return &Error{Code: CodeInternal, Message: ErrInternal.Message, Err: err}
}

func insufficientPermissions(allowed []Role) error {
	return &Error{
		Code:         CodeInsufficientPermissions,
		Message:      ErrInsufficientPermissions.Message,
		AllowedRoles: append([]Role(nil), allowed...),
	}
}

// CodeOf returns the code carried by err, or CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
