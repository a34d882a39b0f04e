// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Yomira identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Build the security primitives (cipher, blind index, hasher, tokens).
//  7. Wire the identity and access services.
//  8. Bootstrap the administrator account when configured.
//  9. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/yomira-auth/internal/api"
	"github.com/taibuivan/yomira-auth/internal/bootstrap"
	"github.com/taibuivan/yomira-auth/internal/platform/config"
	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira-auth/internal/platform/postgres"
	redisstore "github.com/taibuivan/yomira-auth/internal/platform/redis"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/users/access"
	"github.com/taibuivan/yomira-auth/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("[Yomira] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("password_hasher", cfg.PasswordHasher),
		slog.String("refresh_strategy", cfg.RefreshTokenStrategy),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(ctxutil.WithLogger(context.Background(), log), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, log), "run migrations")

	// ── 6. Security Primitives ────────────────────────────────────────────
	cipher, err := sec.NewCipher(cfg.AESEncryptKey)
	must(log, err, "initialize field cipher")

	indexer, err := sec.NewBlindIndexer(cfg.BlindIndexKey)
	must(log, err, "initialize blind indexer")

	hasher, err := sec.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	must(log, err, "initialize password hasher")

	tokens, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:    cfg.JWTAccessSecret,
		RefreshSecret:   cfg.JWTRefreshSecret,
		Algorithm:       cfg.JWTAlgorithm,
		AccessTTL:       cfg.AccessTTL(),
		RefreshTTL:      cfg.RefreshTTL(),
		RefreshStrategy: cfg.RefreshTokenStrategy,
	})
	must(log, err, "initialize token service")

	verifier, err := auth.NewCredentialVerifier(hasher)
	must(log, err, "initialize credential verifier")

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	authService := auth.NewService(auth.ServiceDeps{
		DB:       pool,
		Users:    auth.NewUserRepository(),
		Tokens:   auth.NewTokenRepository(),
		History:  auth.NewLoginHistoryRepository(),
		Attempts: auth.NewLoginAttemptRepository(rdb),
		Cipher:   cipher,
		Indexer:  indexer,
		Issuer:   tokens,
		Verifier: verifier,
		Hasher:   hasher,
		Lockout: auth.LockoutPolicy{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginLockout(),
		},
	})

	accessService := access.NewService(
		pool,
		access.NewPermissionRepository(),
		access.NewRoleRepository(),
		access.NewAssignmentRepository(),
	)

	// ── 8. Admin Bootstrap ────────────────────────────────────────────────
	if cfg.AdminBootstrapEnabled() {
		admin := bootstrap.Admin{Email: cfg.AdminEmail, Password: cfg.AdminPassword, Mobile: cfg.AdminMobile}
		must(log, bootstrap.EnsureAdmin(startupCtx, admin, authService, accessService), "bootstrap administrator")
	}

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth: auth.NewHandler(authService, tokens, auth.CookieConfig{
			SameSite: auth.ParseSameSite(cfg.CookieSameSite),
			Domain:   cfg.CookieDomain,
		}),
		Access: access.NewHandler(accessService, auth.NewBearerGuard(tokens)),
	}

	// Cancelled on shutdown so background janitors (rate limiter) stop.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	server := api.NewServer(rootCtx, cfg, log, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With(
		slog.String(constants.FieldApp, constants.AppName),
		slog.String(constants.FieldVersion, constants.AppVersion),
	)
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
