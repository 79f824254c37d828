package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers instrument directory routes. Mounted under the admin group.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/instruments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/resolve", h.HandleResolve)
		r.Post("/migrate", h.HandleMigrate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
			r.Get("/identifiers", h.HandleListIdentifiers)
			r.Post("/identifiers", h.HandleAddIdentifier)
		})
	})
}
