// Package handlers provides HTTP handlers for the instrument directory.
package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
)

// Handler handles instrument HTTP requests
type Handler struct {
	service *instruments.Service
	log     zerolog.Logger
}

// NewHandler creates a new instrument handler
func NewHandler(service *instruments.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "instruments").Logger(),
	}
}

type instrumentRequest struct {
	Type instruments.InstrumentType `json:"type"`
	Name string                     `json:"name"`
}

type identifierRequest struct {
	Type      instruments.IdentifierType `json:"type"`
	Value     string                     `json:"value"`
	ValidFrom string                     `json:"valid_from,omitempty"`
	ValidTo   string                     `json:"valid_to,omitempty"`
}

type migrateRequest struct {
	SourceID int64 `json:"source_id"`
	TargetID int64 `json:"target_id"`
}

// HandleList returns all instruments
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, list)
}

// HandleCreate creates an instrument
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	inst, err := h.service.Create(r.Context(), req.Type, req.Name)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, inst)
}

// HandleGet returns one instrument with identifiers
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	inst, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, inst)
}

// HandleUpdate changes type and name
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	var req instrumentRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	inst, err := h.service.Update(r.Context(), id, req.Type, req.Name)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, inst)
}

// HandleDelete removes an unreferenced instrument
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

// HandleListIdentifiers returns the identifiers of an instrument
func (h *Handler) HandleListIdentifiers(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	idents, err := h.service.ListIdentifiers(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, idents)
}

// HandleAddIdentifier attaches an identifier
func (h *Handler) HandleAddIdentifier(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	var req identifierRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	validFrom, err := optionalDate(req.ValidFrom)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	validTo, err := optionalDate(req.ValidTo)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	ident, err := h.service.AddIdentifier(r.Context(), id, req.Type, req.Value, validFrom, validTo)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, ident)
}

// HandleResolve looks an identifier up: ?type=ISIN&value=...&as_of=YYYY-MM-DD
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asOf, err := optionalDate(q.Get("as_of"))
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	inst, err := h.service.ResolveAsOf(r.Context(), instruments.IdentifierType(q.Get("type")), q.Get("value"), asOf)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	if inst == nil {
		httpapi.WriteError(w, h.log, http.StatusNotFound, "no instrument for identifier")
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, inst)
}

// HandleMigrate folds one instrument into another
func (h *Handler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.Migrate(r.Context(), req.SourceID, req.TargetID)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, result)
}

func optionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
