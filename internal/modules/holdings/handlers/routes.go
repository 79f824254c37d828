package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers holdings routes on a portfolio-scoped router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/holdings", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/recalculate", h.HandleRecalculate)
	})
}

// RegisterAdminRoutes registers maintenance routes
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/holdings/recalculate-all", h.HandleRecalculateAll)
}
