package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/slow-queries", s.handleSlowQueries)

		r.Route("/migrations", func(r chi.Router) {
			r.Get("/status", s.handleMigrationStatus)
			r.Get("/verify", s.handleMigrationVerify)
		})

		r.Post("/cache/invalidate", s.handleCacheInvalidate)
	})

	return r
}
