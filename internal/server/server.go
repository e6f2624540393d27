// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects stores, services,
// handlers, middleware, and routes, and owns their lifetimes:
//
//	cmd/server builds the backends (sqlite / mongo / gridfs / minio, locker, publisher)
//	      ↓ Deps
//	server.New builds PhotoService + UserService → handlers → routes
//	      ↓
//	Start serves until SIGINT/SIGTERM, then drains and closes everything
//
// Which backend sits behind each interface is decided in cmd/server from
// config. Nothing in this package knows whether photos live in SQLite or
// MongoDB.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/events"
	"github.com/sakif/photovault/internal/handler"
	"github.com/sakif/photovault/internal/lock"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/middleware"
	"github.com/sakif/photovault/internal/reconcile"
	"github.com/sakif/photovault/internal/repository"
	"github.com/sakif/photovault/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port              int
	MaxUploadBytes    int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	TokenTTL          time.Duration
	ReconcileInterval time.Duration // 0 disables the background sweeper
	ReconcileGrace    time.Duration
	ShutdownTimeout   time.Duration
}

// Deps are the already-connected backends the server runs on.
//
// Locker, Events and GitHub are optional. Cleanup runs in order after the
// HTTP server has drained, so stores are never closed under a live request.
type Deps struct {
	Photos    repository.PhotoRepository
	Users     repository.UserRepository
	Blobs     blobstore.Store
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Locker    lock.Locker
	Events    events.Publisher
	Metrics   *metrics.Metrics
	GitHub    handler.GitHubExchanger
	Cleanup   []func(context.Context) error
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	deps    Deps
	logger  *slog.Logger
	sweeper *reconcile.Sweeper
}

// New wires services and handlers on top of deps.
//
// Each layer only receives what it needs:
//   - services get repository / blobstore interfaces, never a driver
//   - handlers get services (through small interfaces), never a store
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Photos == nil || deps.Users == nil || deps.Blobs == nil {
		return nil, errors.New("server: photo, user and blob stores are required")
	}
	if deps.Tokens == nil || deps.Passwords == nil {
		return nil, errors.New("server: token and password services are required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
		sweeper: reconcile.NewSweeper(deps.Blobs, deps.Photos, deps.Metrics,
			logger.With("component", "reconcile"), cfg.ReconcileGrace),
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests that drive the full stack
// through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health                        → liveness
// GET    /metrics                       → Prometheus scrape
// GET    /auth/github/login|callback    → GitHub sign-in (when configured)
// POST   /auth/logout
// POST   /users/bootstrap|login, DELETE /users/delete
// POST   /users/create, GET /users/me   → token required
// /photos/...                           → token required on every route
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so every later log line can carry it, then RealIP,
// Recoverer, and finally our Logger (which also feeds request metrics).
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger, s.deps.Metrics))

	photoService := service.NewPhotoService(
		s.deps.Photos, s.deps.Blobs, s.deps.Tokens, s.logger.With("component", "photos"),
		service.WithLocker(s.deps.Locker),
		service.WithEvents(s.deps.Events),
		service.WithMetrics(s.deps.Metrics),
	)
	userService := service.NewUserService(
		s.deps.Users, s.deps.Tokens, s.deps.Passwords, s.deps.Locker, s.logger.With("component", "users"),
	)

	photoHandler := handler.NewPhotoHandler(photoService, s.config.MaxUploadBytes, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	requireAuth := auth.RequireAuth(s.deps.Tokens)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.deps.Metrics.Handler())

	if s.deps.GitHub != nil {
		authHandler := handler.NewAuthHandler(s.deps.GitHub, userService, s.config.TokenTTL, s.logger)
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	}

	s.router.Route("/users", func(r chi.Router) {
		r.Post("/bootstrap", userHandler.HandleBootstrap)
		r.Post("/login", userHandler.HandleLogin)
		r.Delete("/delete", userHandler.HandleDelete)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create", userHandler.HandleCreate)
			r.Get("/me", userHandler.HandleMe)
		})
	})

	s.router.Route("/photos", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/upload", photoHandler.HandleUpload)
		r.Get("/", photoHandler.HandleList)
		r.Get("/download/{blobID}", photoHandler.HandleDownload)
		r.Get("/{id}", photoHandler.HandleGet)
		r.Delete("/{id}", photoHandler.HandleDelete)
		r.Delete("/delete/{id}", photoHandler.HandleDelete)
		r.Patch("/rename/{id}", photoHandler.HandleRename)
		r.Patch("/updateMetadata/{id}", photoHandler.HandleUpdateMetadata)
		r.Patch("/toggleFavorite/{id}", photoHandler.HandleToggleFavorite)
	})
}

// Start serves HTTP until SIGINT/SIGTERM or a listener error.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections, let in-flight requests finish
//  2. Stop the reconciler (waits for a running sweep)
//  3. Run Cleanup: publisher, then stores
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if s.config.ReconcileInterval > 0 {
		s.sweeper.Start(s.config.ReconcileInterval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Duration("reconcile_interval", s.config.ReconcileInterval),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// close stops background work and releases every backend. Errors are
// logged rather than returned: by now there is nobody left to act on them.
func (s *Server) close() {
	s.sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.deps.Events.Close(); err != nil {
		s.logger.Warn("closing event publisher", slog.String("error", err.Error()))
	}
	for _, cleanup := range s.deps.Cleanup {
		if err := cleanup(ctx); err != nil {
			s.logger.Warn("closing backend", slog.String("error", err.Error()))
		}
	}
}
