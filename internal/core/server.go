// Package core provides the API chassis for the notekeeper service: the chi
// router, the global middleware chain (recovery, request IDs, logging, CORS,
// auth), and the shared response and validation utilities. It enforces
// cross-cutting concerns before requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"notekeeper/internal/config"
	"notekeeper/internal/types"
)

// Authenticator resolves a raw bearer token to the authenticated user.
// Implemented by auth.Service; injected so tests can substitute a fake.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*types.User, error)
}

// Pinger reports database liveness for the health endpoint.
// Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server encapsulates the dependencies of the HTTP API, allowing for easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator
	DB            Pinger

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. It performs a fail-fast check on critical configuration.
//
// The caller mounts routes (via MountRoutes) after construction; this
// separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HandleHealth reports service and database liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("health check database ping failed", "error", err.Error())
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	JSON(w, r, code, map[string]string{"status": status})
}
