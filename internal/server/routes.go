package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.opts.Fetcher != nil {
		fetchHandlers := handlers.NewFetchHandlers(s.opts.Fetcher, s.opts.PerPage, s.opts.MaxPages)
		s.router.Route("/v1", func(r chi.Router) {
			r.Get("/resources/*", fetchHandlers.Resource)
			r.Get("/collections/*", fetchHandlers.Collection)
			r.Get("/rate-limit", fetchHandlers.RateLimit)
		})
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the gofulmen signal handler behind a bearer
// token. It stays unregistered without one.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no OCTOFETCH_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil, // global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
