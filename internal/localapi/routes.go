package localapi

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *Server) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.HandleHealth)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.HandleListDevices)
		r.Post("/refresh", s.HandleRefreshDevices)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetDevice)
			r.Post("/commands", s.HandleDispatchCommand)
		})
	})
}
