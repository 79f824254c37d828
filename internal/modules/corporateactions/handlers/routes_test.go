package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	testingpkg "github.com/midtierhuman/PortVault-sub000/internal/testing"
)

func newRouter(t *testing.T) (http.Handler, *testingpkg.Fixtures) {
	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	repo := corporateactions.NewRepository(db.Conn(), log)
	service := corporateactions.NewService(repo, db.Conn(), events.NewManager(nil, log), log)

	router := chi.NewRouter()
	NewHandler(service, log).RegisterRoutes(router)
	return router, testingpkg.NewFixtures(t, db.Conn())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCorporateActionRoutes_Lifecycle(t *testing.T) {
	router, fx := newRouter(t)
	parent := fx.Instrument("EQUITY", "Infosys")

	body := fmt.Sprintf(`{"type":"SPLIT","ex_date":"2024-03-01","parent_instrument_id":%d,"ratio_numerator":"2","ratio_denominator":"1"}`, parent)
	rec := do(t, router, http.MethodPost, "/corporate-actions/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created corporateactions.CorporateAction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "100", created.CostPercentageAllocated.String())

	path := fmt.Sprintf("/corporate-actions/%d", created.ID)

	rec = do(t, router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	update := fmt.Sprintf(`{"type":"BONUS","ex_date":"2024-03-05","parent_instrument_id":%d,"ratio_numerator":"3","ratio_denominator":"2","notes":"1:2 bonus"}`, parent)
	rec = do(t, router, http.MethodPut, path, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"type":"BONUS"`)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/corporate-actions/instrument/%d", parent), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []corporateactions.CorporateAction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, router, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorporateActionRoutes_Errors(t *testing.T) {
	router, fx := newRouter(t)
	parent := fx.Instrument("EQUITY", "Infosys")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad date", fmt.Sprintf(`{"type":"SPLIT","ex_date":"01/03/2024","parent_instrument_id":%d,"ratio_numerator":"2","ratio_denominator":"1"}`, parent), http.StatusBadRequest},
		{"zero ratio", fmt.Sprintf(`{"type":"SPLIT","ex_date":"2024-03-01","parent_instrument_id":%d,"ratio_numerator":"0","ratio_denominator":"1"}`, parent), http.StatusBadRequest},
		{"unknown parent", `{"type":"SPLIT","ex_date":"2024-03-01","parent_instrument_id":404,"ratio_numerator":"2","ratio_denominator":"1"}`, http.StatusNotFound},
		{"unknown field", `{"kind":"SPLIT"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/corporate-actions/", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, router, http.MethodDelete, "/corporate-actions/77", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
