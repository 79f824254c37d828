// Package handlers provides HTTP handlers for the corporate action registry.
package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
)

var defaultCostPercentage = decimal.NewFromInt(100)

// Handler handles corporate action HTTP requests
type Handler struct {
	service *corporateactions.Service
	log     zerolog.Logger
}

// NewHandler creates a new corporate action handler
func NewHandler(service *corporateactions.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "corporate_actions").Logger(),
	}
}

type actionRequest struct {
	Type                    corporateactions.ActionType `json:"type"`
	ExDate                  string                      `json:"ex_date"`
	ParentInstrumentID      int64                       `json:"parent_instrument_id"`
	ChildInstrumentID       *int64                      `json:"child_instrument_id,omitempty"`
	RatioNumerator          decimal.Decimal             `json:"ratio_numerator"`
	RatioDenominator        decimal.Decimal             `json:"ratio_denominator"`
	CostPercentageAllocated *decimal.Decimal            `json:"cost_percentage_allocated,omitempty"`
	Notes                   string                      `json:"notes,omitempty"`
}

func (req actionRequest) toAction() (corporateactions.CorporateAction, error) {
	exDate, err := domain.ParseDate(req.ExDate)
	if err != nil {
		return corporateactions.CorporateAction{}, err
	}

	costPct := defaultCostPercentage
	if req.CostPercentageAllocated != nil {
		costPct = *req.CostPercentageAllocated
	}

	return corporateactions.CorporateAction{
		Type:                    req.Type,
		ExDate:                  exDate,
		ParentInstrumentID:      req.ParentInstrumentID,
		ChildInstrumentID:       req.ChildInstrumentID,
		RatioNumerator:          req.RatioNumerator,
		RatioDenominator:        req.RatioDenominator,
		CostPercentageAllocated: costPct,
		Notes:                   req.Notes,
	}, nil
}

// HandleList returns every corporate action
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, actions)
}

// HandleCreate registers a corporate action
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	action, err := req.toAction()
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	created, err := h.service.Create(r.Context(), action)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, created)
}

// HandleGet returns one corporate action
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	action, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, action)
}

// HandleUpdate replaces a corporate action
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	var req actionRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	action, err := req.toAction()
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	updated, err := h.service.Update(r.Context(), id, action)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, updated)
}

// HandleDelete removes a corporate action
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListForInstrument returns actions where the instrument is parent or child
func (h *Handler) HandleListForInstrument(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	actions, err := h.service.GetByInstrument(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, actions)
}
