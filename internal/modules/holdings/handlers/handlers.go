// Package handlers provides HTTP handlers for holdings snapshots.
package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/holdings"
	portfoliohandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios/handlers"
)

// Handler handles holdings HTTP requests
type Handler struct {
	service *holdings.Service
	log     zerolog.Logger
}

// NewHandler creates a new holdings handler
func NewHandler(service *holdings.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "holdings").Logger(),
	}
}

// HandleGet returns the stored snapshot of a portfolio
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := httpapi.IDParam(r, portfoliohandlers.PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	views, err := h.service.GetHoldings(r.Context(), portfolioID)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteNegotiated(w, r, h.log, http.StatusOK, views)
}

// HandleRecalculate rebuilds the snapshot of a portfolio
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := httpapi.IDParam(r, portfoliohandlers.PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.RecalculateHoldings(r.Context(), portfolioID)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleRecalculateAll rebuilds every portfolio
func (h *Handler) HandleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RecalculateAll(r.Context()); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]string{"status": "ok"})
}
