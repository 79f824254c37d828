package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio routes. Modules serving portfolio-scoped resources pass
// their registration functions as nested; they are mounted under /{portfolioID} behind the
// ownership check.
func (h *Handler) RegisterRoutes(r chi.Router, nested ...func(chi.Router)) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Use(h.requireOwner)

			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleRename)
			r.Delete("/", h.HandleDelete)
			r.Post("/clear", h.HandleClear)
			r.Get("/uploads", h.HandleListUploads)

			for _, register := range nested {
				register(r)
			}
		})
	})
}
