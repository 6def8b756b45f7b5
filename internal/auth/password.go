package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const argon2idPrefix = "$argon2id$"

// PasswordVerifier compares plaintext passwords against stored salted hashes.
// bcrypt and argon2id (PHC format) hashes are accepted. Concurrent hash work is
// bounded so a burst of logins queues instead of pinning every core.
type PasswordVerifier struct {
	cost      int
	limit     int
	slots     *semaphore.Weighted
	dummyHash []byte
}

// PasswordOption configures a PasswordVerifier.
type PasswordOption func(*PasswordVerifier)

// WithBcryptCost sets the cost used by Hash and by the timing dummy.
func WithBcryptCost(cost int) PasswordOption {
	return func(v *PasswordVerifier) {
		if cost > 0 {
			v.cost = cost
		}
	}
}

// WithHashConcurrency caps the number of hash computations running at once.
func WithHashConcurrency(n int) PasswordOption {
	return func(v *PasswordVerifier) {
		if n > 0 {
			v.limit = n
		}
	}
}

// NewPasswordVerifier builds a verifier. The default concurrency is GOMAXPROCS.
func NewPasswordVerifier(opts ...PasswordOption) (*PasswordVerifier, error) {
	v := &PasswordVerifier{
		cost:  bcrypt.DefaultCost,
		limit: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.cost < bcrypt.MinCost || v.cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", v.cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	v.slots = semaphore.NewWeighted(int64(v.limit))

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(seed)), v.cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	v.dummyHash = dummy
	return v, nil
}

// Hash returns a bcrypt hash of plaintext.
func (v *PasswordVerifier) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password is empty")
	}
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer v.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches storedHash.
// Empty inputs, unknown hash formats and a cancelled ctx all yield false.
func (v *PasswordVerifier) Verify(ctx context.Context, plaintext, storedHash string) bool {
	if plaintext == "" || storedHash == "" {
		return false
	}
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer v.slots.Release(1)

	if strings.HasPrefix(storedHash, argon2idPrefix) {
		ok, err := verifyArgon2id(plaintext, storedHash)
		return err == nil && ok
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// Dummy spends the same effort as a real bcrypt comparison and discards the result.
// Login calls it for unknown emails so response timing does not reveal account existence.
func (v *PasswordVerifier) Dummy(ctx context.Context, plaintext string) {
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer v.slots.Release(1)
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(plaintext))
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// verifyArgon2id checks plaintext against $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func verifyArgon2id(plaintext, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid argon2id hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parse version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return false, fmt.Errorf("parse parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}
	got := argon2.IDKey([]byte(plaintext), salt, p.time, p.memory, p.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
