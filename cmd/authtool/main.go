// Command authtool is a developer aid for signing secrets, password hashes,
// test tokens and user records.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"sgad.org/internal/auth"
	"sgad.org/internal/config"
	"sgad.org/internal/store/memory"
	"sgad.org/internal/store/pg"
)

func main() {
	config.LoadEnvFiles()
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "secret":
		err = runSecret(os.Args[2:], os.Stdout)
	case "hash":
		err = runHash(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "useradd":
		err = runUserAdd(os.Args[2:], os.Stdout)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s secret|hash|token|useradd [flags]\n", os.Args[0])
	os.Exit(2)
}

func runSecret(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("secret", flag.ContinueOnError)
	size := fs.Int("bytes", 48, "Number of random bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < 32 {
		return fmt.Errorf("refusing to generate a secret shorter than 32 bytes")
	}
	buf := make([]byte, *size)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, base64.RawURLEncoding.EncodeToString(buf))
	return err
}

func runHash(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	password := fs.String("password", "", "Plaintext password")
	cost := fs.Int("cost", 10, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := auth.NewPasswordVerifier(auth.WithBcryptCost(*cost))
	if err != nil {
		return err
	}
	hash, err := v.Hash(context.Background(), *password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	var (
		id        = fs.String("id", "", "Subject id")
		email     = fs.String("email", "", "Subject email")
		role      = fs.String("role", string(auth.RoleReferee), "arbitro, administrador or presidente")
		refereeID = fs.String("referee-id", "", "Optional referee id")
		secret    = fs.String("secret", os.Getenv("JWT_SECRET"), "Signing secret")
		issuer    = fs.String("issuer", envOr("JWT_ISSUER", "sgad-api"), "Token issuer")
		audience  = fs.String("audience", envOr("JWT_AUDIENCE", "sgad-client"), "Token audience")
		ttl       = fs.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *email == "" {
		return fmt.Errorf("-id and -email are required")
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}

	user := &auth.User{ID: *id, Email: auth.NormalizeEmail(*email), Role: r, Active: true}
	if *refereeID != "" {
		user.Referee = &auth.RefereeProfile{ID: *refereeID}
	}
	store := memory.New()
	if _, err := store.CreateUser(context.Background(), user); err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   []byte(*secret),
		TTL:      *ttl,
		Issuer:   *issuer,
		Audience: *audience,
	}, store)
	if err != nil {
		return err
	}
	tok, err := tokens.Issue(user)
	if err != nil {
		return err
	}
	// Round-trip through Verify so a misconfigured secret fails here, not at the API.
	if _, err := tokens.Verify(context.Background(), tok.Value); err != nil {
		return fmt.Errorf("self-check: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s\nexpires_at=%s\n", tok.Value, tok.ExpiresAt.Format(time.RFC3339))
	return err
}

func runUserAdd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	var (
		dsn       = fs.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		email     = fs.String("email", "", "Email")
		password  = fs.String("password", "", "Plaintext password")
		role      = fs.String("role", string(auth.RoleReferee), "arbitro, administrador or presidente")
		firstName = fs.String("first-name", "", "First name")
		lastName  = fs.String("last-name", "", "Last name")
		refereeID = fs.String("referee-id", "", "Referee id")
		license   = fs.String("license", "", "Referee license number")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return fmt.Errorf("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("-email and -password are required")
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v, err := auth.NewPasswordVerifier()
	if err != nil {
		return err
	}
	hash, err := v.Hash(ctx, *password)
	if err != nil {
		return err
	}

	store, err := pg.Open(*dsn, pg.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        *email,
		PasswordHash: hash,
		Role:         r,
		Active:       true,
		FirstName:    *firstName,
		LastName:     *lastName,
	}
	if *refereeID != "" {
		user.Referee = &auth.RefereeProfile{ID: *refereeID, LicenseNumber: *license}
	}
	created, err := store.CreateUser(ctx, user)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "created %s %s (%s)\n", created.ID, created.Email, created.Role)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
