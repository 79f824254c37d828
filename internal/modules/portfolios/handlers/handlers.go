// Package handlers provides HTTP handlers for portfolios.
package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
)

// PortfolioIDParam names the URL parameter carrying the portfolio id for nested routes
const PortfolioIDParam = "portfolioID"

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolios.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolios.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolios").Logger(),
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

// HandleList returns the caller's portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByUser(r.Context(), httpapi.UserID(r.Context()))
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, list)
}

// HandleCreate creates a portfolio for the caller
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	p, err := h.service.Create(r.Context(), httpapi.UserID(r.Context()), req.Name)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, p)
}

// HandleGet returns one of the caller's portfolios
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	p, err := h.service.GetForUser(r.Context(), httpapi.UserID(r.Context()), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, p)
}

// HandleRename renames one of the caller's portfolios
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	var req nameRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	p, err := h.service.Rename(r.Context(), httpapi.UserID(r.Context()), id, req.Name)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, p)
}

// HandleDelete removes a portfolio with everything in it
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.Delete(r.Context(), httpapi.UserID(r.Context()), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleClear removes all transactions and holdings of a portfolio
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.Clear(r.Context(), httpapi.UserID(r.Context()), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleListUploads returns the upload audit trail
func (h *Handler) HandleListUploads(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	uploads, err := h.service.ListUploads(r.Context(), httpapi.UserID(r.Context()), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, uploads)
}

// requireOwner rejects nested requests for portfolios the caller does not own
func (h *Handler) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := httpapi.IDParam(r, PortfolioIDParam)
		if err != nil {
			httpapi.WriteDomainError(w, h.log, err)
			return
		}

		if err := h.service.Authorize(r.Context(), httpapi.UserID(r.Context()), id); err != nil {
			httpapi.WriteDomainError(w, h.log, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
