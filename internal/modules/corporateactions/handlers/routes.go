package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers corporate action routes. Mounted under the admin group.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/corporate-actions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
		})

		r.Get("/instrument/{id}", h.HandleListForInstrument)
	})
}
