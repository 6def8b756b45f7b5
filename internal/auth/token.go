package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sgad.org/internal/ids"
)

// DefaultTokenTTL is the lifetime of an issued token when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// TokenConfig is the immutable signing configuration loaded once at startup.
type TokenConfig struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string
}

// Claims is the token payload.
type Claims struct {
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	RefereeID string `json:"refereeId,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed identity token with its expiry.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Verifier resolves a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Principal, error)
}

// TokenService issues, verifies and refreshes HS256 tokens.
type TokenService struct {
	cfg    TokenConfig
	users  CredentialStore
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService validates cfg and returns a ready service.
func NewTokenService(cfg TokenConfig, users CredentialStore, opts ...TokenOption) (*TokenService, error) {
	switch {
	case len(cfg.Secret) == 0:
		return nil, errors.New("token secret is required")
	case cfg.TTL <= 0:
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TTL)
	case strings.TrimSpace(cfg.Issuer) == "":
		return nil, errors.New("token issuer is required")
	case strings.TrimSpace(cfg.Audience) == "":
		return nil, errors.New("token audience is required")
	case users == nil:
		return nil, errors.New("credential store is required")
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	s := &TokenService{
		cfg:   cfg,
		users: users,
		now:   time.Now,
		// Registered claims are checked by hand in parse so that refresh can skip exp.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			// Non-canonical base64 would let the trailing signature bits change unnoticed.
			jwt.WithStrictDecoding(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.cfg.TTL }

// Issue signs a new token for user. It has no side effects.
func (s *TokenService) Issue(user *User) (Token, error) {
	if user == nil || user.ID == "" {
		return Token{}, internalError(errors.New("issue token: user without id"))
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.cfg.TTL)
	jti := ids.New()

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if user.Referee != nil {
		claims.RefereeID = user.Referee.ID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, internalError(fmt.Errorf("sign token: %w", err))
	}
	return Token{
		Value:     signed,
		ID:        jti,
		ExpiresAt: exp,
		ExpiresIn: s.cfg.TTL,
	}, nil
}

// Verify checks the signature, issuer, audience and expiry of raw, then
// re-resolves the subject so role and status changes since issuance apply.
func (s *TokenService) Verify(ctx context.Context, raw string) (Principal, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return Principal{}, err
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return Principal{}, ErrTokenExpired
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return Principal{}, ErrSubjectNotFound
	case err != nil:
		return Principal{}, internalError(fmt.Errorf("resolve subject %s: %w", claims.Subject, err))
	case !user.Active:
		return Principal{}, ErrSubjectInactive
	}
	return NewPrincipal(user), nil
}

// Refresh accepts a token whose signature is valid even if it has expired and
// issues a new one from the subject's current record.
func (s *TokenService) Refresh(ctx context.Context, raw string) (Token, Principal, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return Token{}, Principal{}, err
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return Token{}, Principal{}, ErrSubjectInvalid
	case err != nil:
		return Token{}, Principal{}, internalError(fmt.Errorf("resolve subject %s: %w", claims.Subject, err))
	case !user.Active:
		return Token{}, Principal{}, ErrSubjectInvalid
	}

	tok, err := s.Issue(user)
	if err != nil {
		return Token{}, Principal{}, err
	}
	return tok, NewPrincipal(user), nil
}

// parse validates everything except expiry.
func (s *TokenService) parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	})
	if err != nil {
		return nil, &Error{Code: CodeTokenMalformed, Message: ErrTokenMalformed.Message, Err: err}
	}
	switch {
	case claims.Issuer != s.cfg.Issuer:
		return nil, malformed("unexpected issuer")
	case !slices.Contains(claims.Audience, s.cfg.Audience):
		return nil, malformed("unexpected audience")
	case claims.Subject == "":
		return nil, malformed("missing subject")
	case claims.ExpiresAt == nil:
		return nil, malformed("missing expiry")
	}
	return claims, nil
}

func malformed(reason string) error {
	return &Error{Code: CodeTokenMalformed, Message: ErrTokenMalformed.Message, Err: errors.New(reason)}
}
