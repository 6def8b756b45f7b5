package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sgad.org/internal/audit"
	"sgad.org/internal/auth"
	"sgad.org/internal/config"
	"sgad.org/internal/httpapi"
	"sgad.org/internal/obs"
	"sgad.org/internal/store/memory"
	"sgad.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type credentialStore interface {
	auth.CredentialStore
	httpapi.Pinger
}

func main() {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := obs.NewLogger(obs.LogOptions{
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Pretty:      cfg.LogPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	obs.Init()
	obs.InitBuildInfo(obs.CurrentBuild(cfg.ServiceName, version, commit))

	passwords, err := auth.NewPasswordVerifier(
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithHashConcurrency(cfg.HashConcurrency),
	)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, passwords, log)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.NewTokenService(cfg.TokenConfig(), store)
	if err != nil {
		return err
	}
	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	ready := httpapi.ReadyProbe{Store: store, Timeout: 2 * time.Second}

	api := httpapi.New(httpapi.Deps{
		Login:       auth.NewLoginService(store, passwords, tokens, log),
		Tokens:      tokens,
		Users:       store,
		Ready:       ready,
		Audit:       audit.NewRecorder(log),
		Log:         log,
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
		LoginLimit: httpapi.RateLimitConfig{
			PerSecond:      cfg.LoginRatePerSec,
			Burst:          cfg.LoginRateBurst,
			MaxClients:     cfg.RateLimitClients,
			TrustedProxies: trusted,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := httpapi.NewGRPCServer(ready, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, passwords *auth.PasswordVerifier, log zerolog.Logger) (credentialStore, func(), error) {
	if !cfg.UseMemoryStore() {
		store, err := pg.Open(cfg.DatabaseURL, cfg.PostgresOptions())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("using postgres credential store")
		return store, func() { _ = store.Close() }, nil
	}

	store := memory.New()
	log.Warn().Msg("DATABASE_URL not set, using in-memory credential store")
	if cfg.DevAdminEmail != "" && cfg.DevAdminPassword != "" {
		hash, err := passwords.Hash(ctx, cfg.DevAdminPassword)
		if err != nil {
			return nil, nil, err
		}
		if _, err := store.CreateUser(ctx, &auth.User{
			Email:        cfg.DevAdminEmail,
			PasswordHash: hash,
			Role:         auth.RoleAdministrator,
			Active:       true,
		}); err != nil {
			return nil, nil, err
		}
		log.Info().Str("email", auth.NormalizeEmail(cfg.DevAdminEmail)).Msg("seeded development administrator")
	}
	return store, func() {}, nil
}
