package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/users/me", s.HandleGetCurrentUser)

		// Per-project surfaces
		r.Route("/projects/{project_id}", func(r chi.Router) {
			// Log files
			r.Route("/logfiles", func(r chi.Router) {
				r.Post("/", s.HandleUploadLogFile)
				r.Get("/", s.HandleListLogFiles)
			})

			// Event search
			r.Route("/events", func(r chi.Router) {
				r.Get("/", s.HandleSearchEvents)
			})

			// Materialized sessions
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.HandleListSessions)
				r.Get("/{link_code}", s.HandleGetSession)
				r.Get("/{link_code}/commands", s.HandleListSessionCommands)
			})

			// Anomaly scan over a time window
			r.Get("/anomalies", s.HandleDetectAnomalies)

			// Known issue rules
			r.Route("/known-issues", func(r chi.Router) {
				r.Get("/", s.HandleListKnownIssues)
				r.Post("/", s.HandleCreateKnownIssue)
				r.Post("/match", s.HandleMatchEvent)
				r.Post("/match-batch", s.HandleMatchBatch)
				r.Get("/report", s.HandleIssueReport)
			})
		})

		// File-scoped surfaces
		r.Route("/logfiles/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetLogFile)
			r.Delete("/", s.HandleDeleteLogFile)
			r.Post("/reparse", s.HandleReparseLogFile)
			r.Get("/analysis", s.HandleGetAnalysis)
			r.Post("/analysis/rebuild", s.HandleRebuildAnalysis)
		})

		// Event detail
		r.Route("/events/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetEvent)
			r.Get("/context", s.HandleGetEventContext)
		})

		// Known issue detail
		r.Route("/known-issues/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetKnownIssue)
			r.Put("/", s.HandleUpdateKnownIssue)
			r.Delete("/", s.HandleDeleteKnownIssue)
		})
	})
}
