package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(domain.NewValidationError("bad")))
	assert.Equal(t, http.StatusNotFound, StatusFor(domain.NewNotFoundError("gone")))
	assert.Equal(t, http.StatusConflict, StatusFor(domain.NewConflictError("dup")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("disk I/O error")))
}

func TestWriteDomainError_HidesStorageDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, zerolog.Nop(), errors.New("database is locked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")

	rec = httptest.NewRecorder()
	WriteDomainError(rec, zerolog.Nop(), domain.NewConflictError("portfolio \"Main\" already exists"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestWriteNegotiated(t *testing.T) {
	payload := map[string]string{"symbol": "INFY"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	WriteNegotiated(rec, req, zerolog.Nop(), http.StatusOK, payload)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"symbol":"INFY"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", ContentTypeMsgpack)
	rec = httptest.NewRecorder()
	WriteNegotiated(rec, req, zerolog.Nop(), http.StatusOK, payload)
	assert.Equal(t, ContentTypeMsgpack, rec.Header().Get("Content-Type"))

	var decoded map[string]string
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, payload, decoded)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Main","extra":1}`))
	err := DecodeJSON(req, &body)
	assert.True(t, domain.IsValidation(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Main"}`))
	require.NoError(t, DecodeJSON(req, &body))
	assert.Equal(t, "Main", body.Name)
}

func TestDecodeJSONLenient_IgnoresUnknownFields(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Main","extra":1}`))
	require.NoError(t, DecodeJSONLenient(req, &body))
	assert.Equal(t, "Main", body.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.True(t, domain.IsValidation(DecodeJSONLenient(req, &body)))
}

func TestRequireUser(t *testing.T) {
	var seen string
	handler := RequireUser(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "user-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", seen)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAdmin, "true")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIDParam(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var gotErr error
	r.Get("/items/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = IDParam(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/17", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(17), got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/abc", nil))
	assert.True(t, domain.IsValidation(gotErr))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/-3", nil))
	assert.True(t, domain.IsValidation(gotErr))
}
