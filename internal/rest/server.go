// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carebridge.
//
// carebridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the authentication core over HTTP: password
// sessions, passkey ceremonies, and the emergency-info PIN gate.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carebridge/carebridge/internal/auth"
	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/logging"
	"github.com/carebridge/carebridge/pkg/metrics"
	"github.com/carebridge/carebridge/pkg/pingate"
	"github.com/carebridge/carebridge/pkg/ratelimit"
	"github.com/carebridge/carebridge/pkg/session"
	"github.com/carebridge/carebridge/pkg/webauthn"
)

// Server is the REST API server.
type Server struct {
	server   *http.Server
	router   *chi.Mux
	logger   *logging.Logger
	origins  []string
	addr     string
	metrics  bool
	auth     *auth.Service
	passkeys *webauthn.Service
	sessions *session.Manager
	pins     *pingate.Gate
	limiter  *ratelimit.Limiter
	store    *store.Store
}

// Config holds the REST server configuration and dependencies.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// Origins are the browser origins allowed by CORS. Usually the
	// relying-party origins.
	Origins []string

	// Auth is the password registration/login service (required).
	Auth *auth.Service

	// Passkeys is the WebAuthn ceremony service (required).
	Passkeys *webauthn.Service

	// Sessions is the session manager (required).
	Sessions *session.Manager

	// Pins is the emergency-info PIN gate (required).
	Pins *pingate.Gate

	// Store is the persistence layer (required).
	Store *store.Store

	// Limiter applies request budgets (optional; nil disables).
	Limiter *ratelimit.Limiter

	// Logger defaults to the package default logger.
	Logger *logging.Logger

	// Metrics exposes /metrics when true.
	Metrics bool

	// ReadTimeout, WriteTimeout, IdleTimeout tune the HTTP server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates the REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Auth == nil || cfg.Passkeys == nil || cfg.Sessions == nil || cfg.Pins == nil || cfg.Store == nil {
		return nil, fmt.Errorf("auth, passkeys, sessions, pins, and store are required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	server := &Server{
		logger:   log,
		origins:  cfg.Origins,
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		metrics:  cfg.Metrics,
		auth:     cfg.Auth,
		passkeys: cfg.Passkeys,
		sessions: cfg.Sessions,
		pins:     cfg.Pins,
		limiter:  cfg.Limiter,
		store:    cfg.Store,
	}

	server.router = server.setupRouter()
	server.server = &http.Server{
		Addr:         server.addr,
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	if s.metrics {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(s.CORSMiddleware())

	r.Get("/healthz", s.HealthHandler)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.APILimitMiddleware())
		r.Use(s.SessionMiddleware())

		r.Post("/register", s.RegisterLimitMiddleware(s.RegisterHandler))
		r.Post("/login", s.LoginLimitMiddleware(s.LoginHandler))
		r.Post("/logout", s.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth())

			r.Get("/user", s.CurrentUserHandler)

			r.Get("/webauthn/status", s.PasskeyStatusHandler)
			r.Get("/webauthn/register/start", s.PasskeyRegisterStartHandler)
			r.Post("/webauthn/register/finish", s.PasskeyRegisterFinishHandler)
			r.Get("/webauthn/credentials", s.ListCredentialsHandler)
			r.Delete("/webauthn/credentials/{id}", s.DeleteCredentialHandler)
		})

		r.Get("/webauthn/login/start", s.PasskeyLoginStartHandler)
		r.Post("/webauthn/login/finish", s.LoginLimitMiddleware(s.PasskeyLoginFinishHandler))

		r.Route("/emergency-info/{id}", func(r chi.Router) {
			r.Use(s.RequireAuth())

			r.Post("/set-pin", s.SetPinHandler)
			r.Post("/verify-pin", s.LoginLimitMiddleware(s.VerifyPinHandler))
			r.Get("/check-verified", s.CheckVerifiedHandler)
			r.Post("/lock", s.LockHandler)
		})
	})

	return r
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the REST API server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err.Error())
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// HealthHandler reports process liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
