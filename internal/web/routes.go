package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
)

func (s *Server) setupRoutes(verifier handlers.Verifier, reporter handlers.Reporter) {
	verifyHandler := handlers.NewVerifyHandler(verifier, s.logger)
	reportHandler := handlers.NewReportHandler(reporter, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", verifyHandler.Verify)
		r.Get("/report/daily", reportHandler.Daily)
		r.Get("/report/daily/export", reportHandler.Export)
	})
}
