// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"sgad.org/internal/auth"
	"sgad.org/internal/store/pg"
)

// Config holds the environment driven configuration of the auth service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"sgad-auth"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY" envDefault:"false"`

	JWTSecret    string        `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"sgad-api"`
	JWTAudience  string        `env:"JWT_AUDIENCE" envDefault:"sgad-client"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"15m"`
	DBQueryTimeout    time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"3s"`

	BcryptCost      int `env:"BCRYPT_COST" envDefault:"10"`
	HashConcurrency int `env:"HASH_CONCURRENCY" envDefault:"0"`

	LoginRatePerSec  float64 `env:"LOGIN_RATE_PER_SEC" envDefault:"5"`
	LoginRateBurst   int     `env:"LOGIN_RATE_BURST" envDefault:"10"`
	RateLimitClients int     `env:"RATE_LIMIT_CLIENTS" envDefault:"10000"`
	// Addresses or CIDR ranges of reverse proxies allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Seed an administrator into the in-memory store. Ignored with DATABASE_URL.
	DevAdminEmail    string `env:"DEV_ADMIN_EMAIL"`
	DevAdminPassword string `env:"DEV_ADMIN_PASSWORD"`
}

// Load parses environment variables into Config and validates the result.
// Call LoadEnvFiles first to overlay .env files.
func Load() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.JWTExpiresIn <= 0:
		return fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.JWTExpiresIn)
	case strings.TrimSpace(c.JWTIssuer) == "":
		return fmt.Errorf("JWT_ISSUER must not be blank")
	case strings.TrimSpace(c.JWTAudience) == "":
		return fmt.Errorf("JWT_AUDIENCE must not be blank")
	case c.LoginRatePerSec <= 0 || c.LoginRateBurst <= 0:
		return fmt.Errorf("LOGIN_RATE_PER_SEC and LOGIN_RATE_BURST must be positive")
	case c.RateLimitClients <= 0:
		return fmt.Errorf("RATE_LIMIT_CLIENTS must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address is a single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// LoadEnvFiles overlays .env files onto the process environment.
// With no arguments it tries ./.env and ../.env.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

// TokenConfig returns the signing configuration for auth.NewTokenService.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   []byte(c.JWTSecret),
		TTL:      c.JWTExpiresIn,
		Issuer:   c.JWTIssuer,
		Audience: c.JWTAudience,
	}
}

// PostgresOptions returns the pool settings for pg.Open.
func (c *Config) PostgresOptions() pg.Options {
	return pg.Options{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		QueryTimeout:    c.DBQueryTimeout,
	}
}

// UseMemoryStore reports whether no database is configured.
func (c *Config) UseMemoryStore() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}
