package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PasswordChecker compares a plaintext password with a stored hash.
type PasswordChecker interface {
	Verify(ctx context.Context, plaintext, storedHash string) bool
	Dummy(ctx context.Context, plaintext string)
}

// TokenIssuer signs tokens for users.
type TokenIssuer interface {
	Issue(user *User) (Token, error)
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Principal Principal
	Token     Token
}

// LoginService turns an email and password into a Principal and a fresh token.
type LoginService struct {
	users     CredentialStore
	passwords PasswordChecker
	tokens    TokenIssuer
	log       zerolog.Logger
	now       func() time.Time
}

func NewLoginService(users CredentialStore, passwords PasswordChecker, tokens TokenIssuer, log zerolog.Logger) *LoginService {
	return &LoginService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		log:       log.With().Str("component", "login").Logger(),
		now:       time.Now,
	}
}

// NormalizeEmail lowercases and trims an email address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates the caller. Unknown email and wrong password both
// return ErrInvalidCredentials; an inactive account returns ErrAccountInactive.
func (s *LoginService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, validationError("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.passwords.Dummy(ctx, password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, internalError(fmt.Errorf("find user by email: %w", err))
	}

	if !s.passwords.Verify(ctx, password, user.PasswordHash) {
		if err := ctx.Err(); err != nil {
			return LoginResult{}, internalError(err)
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.Active {
		return LoginResult{}, ErrAccountInactive
	}

	at := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, at); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("record last login failed")
	} else {
		user.LastLoginAt = &at
	}

	tok, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Principal: NewPrincipal(user), Token: tok}, nil
}
