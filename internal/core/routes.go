package core

import (
	"github.com/go-chi/chi/v5"
)

// V1RouteRegistrar registers a group of domain routes under /v1. Populated
// by the application entry point; the indirection avoids import cycles
// between core and handler packages.
type V1RouteRegistrar func(r chi.Router)

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 API group, and the health check.
//
// Middleware ordering:
//  1. Recoverer  - catches panics; outermost so nothing escapes.
//  2. RequestID  - correlation ID for tracing, needed by every log line.
//  3. Logger     - structured request logging.
//  4. CORS       - browser security headers.
//  5. Auth       - resolves the Actor; everything below sees an identity.
func (s *Server) MountRoutes(registrars ...V1RouteRegistrar) {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.RequestLogger)
	s.router.Use(CORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.AuthMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range registrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CorsAllowedOrigins) > 0 {
		return s.Config.Server.CorsAllowedOrigins
	}
	return []string{"*"}
}
