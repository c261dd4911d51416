// Package server wires handlers, middleware and routes together and runs the
// HTTP server.
//
// This is the composition root: every dependency is built once here (or in
// main and passed in through Deps) and handed down explicitly. Nothing in
// the app reaches for global state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/cache"
	"github.com/sakif/sumday/internal/handler"
	"github.com/sakif/sumday/internal/middleware"
	"github.com/sakif/sumday/internal/repository"
	"github.com/sakif/sumday/internal/service"
	"github.com/sakif/sumday/web"
)

// userCacheSize bounds how many users the in-process cache holds.
const userCacheSize = 10_000

// Config holds server configuration.
type Config struct {
	Port    int
	BaseURL string // external URL, used as the logout returnTo
	// SecretKey signs the session cookie (via auth.DeriveKey).
	SecretKey     string
	SessionTTL    time.Duration
	SecureCookies bool
	// UserCacheTTL of 0 disables the user cache.
	UserCacheTTL time.Duration
}

// Deps are the long-lived collaborators built by the caller.
type Deps struct {
	Users    repository.UserRepository
	Identity handler.IdentityProvider
	DB       handler.Pinger
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  Config
	logger  *slog.Logger
	cache   *cache.Users // nil when disabled
}

// New builds the dependency graph and the routes.
//
//	Deps.Users → (cache.Users) → services → handlers → routes
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Users == nil || deps.Identity == nil || deps.DB == nil {
		return nil, errors.New("server: Users, Identity and DB are required")
	}

	key, err := auth.DeriveKey(cfg.SecretKey, "session")
	if err != nil {
		return nil, fmt.Errorf("server: deriving session key: %w", err)
	}
	sessions, err := auth.NewSessionStore(key, cfg.SessionTTL, cfg.SecureCookies)
	if err != nil {
		return nil, fmt.Errorf("server: creating session store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	users := deps.Users
	if cfg.UserCacheTTL > 0 {
		s.cache, err = cache.NewUsers(deps.Users, userCacheSize, cfg.UserCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		users = s.cache
	}

	if err := s.setupRoutes(users, deps, sessions); err != nil {
		s.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}

	s.handler = otelhttp.NewHandler(s.router, "http.server",
		otelhttp.WithSpanNameFormatter(middleware.SpanName),
	)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET  /                               → landing page
// GET  /static/*                       → embedded CSS
// GET  /healthz                        → database ping (JSON)
// GET  /login, /callback, /logout      → OIDC flow
// GET|POST /register                   → registration for pending claims
// GET  /profile                        → RequireUser
// POST /profile/update, /toggle-admin  → RequireUser
// GET  /admin/users                    → RequireAdmin
// POST /admin/users/{id}/{action}      → RequireAdmin
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → RouteSpan → Recoverer on everything, then
// LoadSession → LoadUser on the page routes, then the guards per group.
func (s *Server) setupRoutes(users repository.UserRepository, deps Deps, sessions *auth.SessionStore) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.RouteSpan)
	s.router.Use(chimiddleware.Recoverer)

	render, err := handler.NewRenderer(web.Templates(), sessions, s.logger)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(users, s.logger)
	profileService := service.NewProfileService(users, s.logger)
	adminService := service.NewAdminService(users, s.logger)

	home := handler.NewHomeHandler(render, deps.DB, s.logger)
	authHandler := handler.NewAuthHandler(deps.Identity, authService, render, s.config.BaseURL, s.logger)
	profile := handler.NewProfileHandler(profileService, render, s.logger)
	admin := handler.NewAdminHandler(adminService, render, s.logger)

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	s.router.Get("/healthz", home.HandleHealth)

	withSession := chi.Chain(
		auth.LoadSession(sessions),
		auth.LoadUser(users, sessions, s.logger, render.ServerError),
	)
	s.router.NotFound(withSession.HandlerFunc(home.HandleNotFound).ServeHTTP)

	s.router.Group(func(r chi.Router) {
		r.Use(withSession...)

		r.Get("/", home.HandleIndex)
		r.Get("/login", authHandler.HandleLogin)
		r.Get("/callback", authHandler.HandleCallback)
		r.Get("/register", authHandler.HandleRegister)
		r.Post("/register", authHandler.HandleRegisterSubmit)
		r.Get("/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(sessions, s.logger))
			r.Get("/profile", profile.HandleShow)
			r.Post("/profile/update", profile.HandleUpdate)
			r.Post("/profile/toggle-admin", profile.HandleToggleAdmin)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(sessions, s.logger))
			r.Get("/users", admin.HandleListUsers)
			r.Post("/users/{id}/activate", admin.HandleActivate)
			r.Post("/users/{id}/deactivate", admin.HandleDeactivate)
			r.Post("/users/{id}/delete", admin.HandleDelete)
		})
	})

	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases resources owned by the server (not the Deps).
func (s *Server) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully: stop accepting connections and give in-flight requests
// 30 seconds to finish.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second, // the callback waits on the provider
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
