package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(s.service, s.validator, s.log)
	galleryHandler := handlers.NewGalleryHandler(s.service, s.validator, s.log)
	attendanceHandler := handlers.NewAttendanceHandler(s.service, s.validator, s.log)
	healthHandler := handlers.NewHealthHandler(s.service)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Gallery
		r.Post("/reload", galleryHandler.Reload)
		r.Post("/gallery/nearest", galleryHandler.Nearest)

		// Attendance
		r.Get("/attendance/today", attendanceHandler.Today)
	})
}
