package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/classlens/classlens/internal/web/handlers"
	"github.com/classlens/classlens/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	sessionsHandler := handlers.NewSessionsHandler(s.config, s.deps.Sessions, s.deps.Roster, s.deps.Extractor, s.deps.Attendance)
	enrollHandler := handlers.NewEnrollHandler(s.config, s.deps.Enrollments, s.deps.Attendance, s.deps.Extractor, s.deps.Indexes, s.deps.Directory)
	statsHandler := handlers.NewStatsHandler(s.deps.Sessions, s.deps.Enrollments, s.deps.Indexes)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.Web.APIToken))

			// Classes
			r.Post("/classes/{classID}/sessions", sessionsHandler.Start)
			r.Get("/classes/{classID}/roster", enrollHandler.Roster)

			// Sessions
			r.Get("/sessions/{sessionID}", sessionsHandler.Get)
			r.Post("/sessions/{sessionID}/photos", sessionsHandler.ProcessPhoto)
			r.Put("/sessions/{sessionID}/marks/{studentID}", sessionsHandler.SetMark)
			r.Post("/sessions/{sessionID}/submit", sessionsHandler.Submit)
			r.Post("/sessions/{sessionID}/close", sessionsHandler.Close)

			// Students
			r.Post("/students/{studentID}/enroll", enrollHandler.Enroll)
			r.Get("/students/{studentID}/attendance", enrollHandler.History)

			// Stats
			r.Get("/stats", statsHandler.Get)
		})
	})
}
