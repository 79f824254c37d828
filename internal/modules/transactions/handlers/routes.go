package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers ledger routes on a portfolio-scoped router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.With(h.rateLimit).Post("/import", h.HandleImport)
		r.Put("/{txID}", h.HandleCorrect)
		r.Delete("/{txID}", h.HandleDelete)
	})
}
