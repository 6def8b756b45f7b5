package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-0123456789abcdef")

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokens(t *testing.T, store CredentialStore) (*TokenService, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewTokenService(TokenConfig{
		Secret:   testSecret,
		TTL:      24 * time.Hour,
		Issuer:   "sgad-api",
		Audience: "sgad-client",
	}, store, WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, clock
}

func testReferee() *User {
	return &User{
		ID:        "42",
		Email:     "user@sgad.com",
		Role:      RoleReferee,
		Active:    true,
		FirstName: "Ana",
		Referee:   &RefereeProfile{ID: "ref-9", LicenseNumber: "L-100"},
	}
}

func TestNewTokenServiceValidatesConfig(t *testing.T) {
	store := newFakeStore()
	base := TokenConfig{Secret: testSecret, TTL: time.Hour, Issuer: "i", Audience: "a"}
	cases := map[string]func(*TokenConfig){
		"empty secret": func(c *TokenConfig) { c.Secret = nil },
		"zero ttl":     func(c *TokenConfig) { c.TTL = 0 },
		"no issuer":    func(c *TokenConfig) { c.Issuer = " " },
		"no audience":  func(c *TokenConfig) { c.Audience = "" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewTokenService(cfg, store); err == nil {
			t.Fatalf("%s: expected construction error", name)
		}
	}
	if _, err := NewTokenService(base, nil); err == nil {
		t.Fatal("nil store: expected construction error")
	}
}

func TestIssueEmbedsClaims(t *testing.T) {
	user := testReferee()
	svc, clock := newTestTokens(t, newFakeStore(user))

	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.ExpiresIn != 24*time.Hour {
		t.Fatalf("ExpiresIn = %s", tok.ExpiresIn)
	}
	if !tok.ExpiresAt.Equal(clock.t.Add(24 * time.Hour)) {
		t.Fatalf("ExpiresAt = %s", tok.ExpiresAt)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.Value, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if claims.Subject != "42" || claims.Email != "user@sgad.com" || claims.Role != RoleReferee {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.RefereeID != "ref-9" {
		t.Fatalf("refereeId = %q", claims.RefereeID)
	}
	if claims.Issuer != "sgad-api" || len(claims.Audience) != 1 || claims.Audience[0] != "sgad-client" {
		t.Fatalf("unexpected iss/aud: %s %v", claims.Issuer, claims.Audience)
	}
	if claims.ID == "" || claims.ID != tok.ID {
		t.Fatalf("jti = %q, token id = %q", claims.ID, tok.ID)
	}
	if !claims.IssuedAt.Time.Equal(clock.t) {
		t.Fatalf("iat = %s", claims.IssuedAt.Time)
	}
}

func TestVerifyRoundTripAndIdempotence(t *testing.T) {
	user := testReferee()
	svc, _ := newTestTokens(t, newFakeStore(user))
	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	first, err := svc.Verify(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if first.ID != user.ID || first.Email != user.Email || first.Role != user.Role {
		t.Fatalf("principal mismatch: %+v", first)
	}
	second, err := svc.Verify(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if first.ID != second.ID || first.Email != second.Email || first.Role != second.Role ||
		first.Active != second.Active || *first.Referee != *second.Referee {
		t.Fatalf("verify not idempotent: %+v vs %+v", first, second)
	}
}

func TestExpiryBoundary(t *testing.T) {
	user := testReferee()
	svc, clock := newTestTokens(t, newFakeStore(user))
	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.advance(24*time.Hour - time.Second)
	if _, err := svc.Verify(context.Background(), tok.Value); err != nil {
		t.Fatalf("Verify one second before expiry: %v", err)
	}

	clock.advance(time.Second)
	if _, err := svc.Verify(context.Background(), tok.Value); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify at expiry: got %v, want ErrTokenExpired", err)
	}

	fresh, p, err := svc.Refresh(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("Refresh of expired token: %v", err)
	}
	if p.ID != user.ID {
		t.Fatalf("refresh principal = %+v", p)
	}
	if !fresh.ExpiresAt.Equal(clock.t.Add(24 * time.Hour)) {
		t.Fatalf("refreshed expiry = %s", fresh.ExpiresAt)
	}
	if _, err := svc.Verify(context.Background(), fresh.Value); err != nil {
		t.Fatalf("Verify refreshed token: %v", err)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	user := testReferee()
	store := newFakeStore(user)
	svc, _ := newTestTokens(t, store)
	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	store.update(user.ID, func(u *User) { u.Role = RoleAdministrator })

	fresh, p, err := svc.Refresh(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if p.Role != RoleAdministrator {
		t.Fatalf("refresh principal role = %s", p.Role)
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(fresh.Value, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if claims.Role != RoleAdministrator {
		t.Fatalf("refreshed token role = %s", claims.Role)
	}
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// flipSignatureBit flips one of the six bits encoded by the signature character at pos.
func flipSignatureBit(token string, pos int, bit uint) string {
	i := strings.LastIndexByte(token, '.')
	sig := []byte(token[i+1:])
	idx := strings.IndexByte(base64URLAlphabet, sig[pos])
	sig[pos] = base64URLAlphabet[idx^(1<<bit)]
	return token[:i+1] + string(sig)
}

func TestTamperedSignatureRejected(t *testing.T) {
	user := testReferee()
	svc, _ := newTestTokens(t, newFakeStore(user))
	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ctx := context.Background()
	sigLen := len(tok.Value) - strings.LastIndexByte(tok.Value, '.') - 1

	for pos := 0; pos < sigLen; pos++ {
		for bit := uint(0); bit < 6; bit++ {
			bad := flipSignatureBit(tok.Value, pos, bit)
			if bad == tok.Value {
				t.Fatalf("char %d bit %d: token unchanged", pos, bit)
			}
			if _, err := svc.Verify(ctx, bad); !errors.Is(err, ErrTokenMalformed) {
				t.Fatalf("Verify char %d bit %d: got %v", pos, bit, err)
			}
			if _, _, err := svc.Refresh(ctx, bad); !errors.Is(err, ErrTokenMalformed) {
				t.Fatalf("Refresh char %d bit %d: got %v", pos, bit, err)
			}
		}
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	user := testReferee()
	svc, clock := newTestTokens(t, newFakeStore(user))
	ctx := context.Background()

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    "sgad-api",
			Audience:  jwt.ClaimStrings{"sgad-client"},
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"other-client"}
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	noSubject := valid
	noSubject.Subject = ""

	cases := map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   sign(jwt.SigningMethodHS256, []byte("another-secret"), valid),
		"wrong alg":      sign(jwt.SigningMethodHS512, testSecret, valid),
		"none alg":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
		"wrong issuer":   sign(jwt.SigningMethodHS256, testSecret, wrongIssuer),
		"wrong audience": sign(jwt.SigningMethodHS256, testSecret, wrongAudience),
		"no expiry":      sign(jwt.SigningMethodHS256, testSecret, noExpiry),
		"no subject":     sign(jwt.SigningMethodHS256, testSecret, noSubject),
	}
	for name, raw := range cases {
		if _, err := svc.Verify(ctx, raw); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("%s: got %v, want ErrTokenMalformed", name, err)
		}
	}
	if _, err := svc.Verify(ctx, sign(jwt.SigningMethodHS256, testSecret, valid)); err != nil {
		t.Fatalf("control token rejected: %v", err)
	}
}

func TestVerifySubjectStates(t *testing.T) {
	user := testReferee()
	store := newFakeStore(user)
	svc, _ := newTestTokens(t, store)
	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ctx := context.Background()

	store.update(user.ID, func(u *User) { u.Active = false })
	if _, err := svc.Verify(ctx, tok.Value); !errors.Is(err, ErrSubjectInactive) {
		t.Fatalf("inactive: got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, tok.Value); !errors.Is(err, ErrSubjectInvalid) {
		t.Fatalf("refresh inactive: got %v", err)
	}

	store.remove(user.ID)
	if _, err := svc.Verify(ctx, tok.Value); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("missing: got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, tok.Value); !errors.Is(err, ErrSubjectInvalid) {
		t.Fatalf("refresh missing: got %v", err)
	}

	store.findErr = errStoreDown
	_, err = svc.Verify(ctx, tok.Value)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("store failure: got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Fatal("store failure cause should be wrapped")
	}
}
