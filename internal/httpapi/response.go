// Package httpapi holds response, identity and parameter helpers shared by module handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// ContentTypeMsgpack is negotiated through the Accept header
const ContentTypeMsgpack = "application/msgpack"

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteNegotiated writes msgpack when the client accepts it and JSON otherwise
func WriteNegotiated(w http.ResponseWriter, r *http.Request, log zerolog.Logger, status int, data interface{}) {
	if !strings.Contains(r.Header.Get("Accept"), ContentTypeMsgpack) {
		WriteJSON(w, log, status, data)
		return
	}

	body, err := msgpack.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode msgpack response")
		WriteError(w, log, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("Failed to write msgpack response")
	}
}

// WriteError writes {"error": message}
func WriteError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	WriteJSON(w, log, status, map[string]string{"error": message})
}

// StatusFor maps a domain error category to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the status of its category. Storage failures are
// logged and reported without their internal detail.
func WriteDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		WriteError(w, log, status, "internal error")
		return
	}
	WriteError(w, log, status, err.Error())
}

// DecodeJSON decodes the request body into v, rejecting unknown fields
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// DecodeJSONLenient decodes the request body into v, ignoring unknown fields
func DecodeJSONLenient(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("invalid request body: %v", err)
	}
	return nil
}
