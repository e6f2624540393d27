// Package main is the entry point for the photovault server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. Its job is to:
//  1. Read configuration (internal/config, from environment variables)
//  2. Create dependencies (logger, stores, token services)
//  3. Start the application (internal/server)
//
// All actual logic lives in imported packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/backend"
	"github.com/sakif/photovault/internal/config"
	"github.com/sakif/photovault/internal/logging"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "photovault:", err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	// Load reports every malformed variable at once.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog.Close()
	slog.SetDefault(logger)

	// === 3. BACKENDS ===
	// Connecting can block on a dead MongoDB or MinIO, so bound it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backends, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening backends: %w", err)
	}

	// === 4. AUTH ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = backends.Close(context.Background())
		return err
	}

	deps := server.Deps{
		Photos:    backends.Photos,
		Users:     backends.Users,
		Blobs:     backends.Blobs,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(cfg.Auth.PasswordCost),
		Locker:    backends.Locker,
		Events:    backends.Events,
		Metrics:   metrics.New(),
		Cleanup:   []func(context.Context) error{backends.CloseStores},
	}
	if cfg.Auth.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	} else {
		logger.Info("GITHUB_CLIENT_ID/SECRET not set, GitHub sign-in disabled")
	}

	// === 5. SERVE ===
	srv, err := server.New(server.Config{
		Port:              cfg.Server.Port,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		TokenTTL:          cfg.Auth.TokenTTL,
		ReconcileInterval: cfg.Reconcile.Interval,
		ReconcileGrace:    cfg.Reconcile.Grace,
	}, deps, logger)
	if err != nil {
		_ = backends.Close(context.Background())
		return err
	}

	// Start blocks until SIGINT/SIGTERM and closes the backends on the way out.
	return srv.Start()
}
