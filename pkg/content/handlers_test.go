package content

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/origolabs/origo/pkg/plans"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	db := setupTestDB(t)
	handlers := NewHandlers(NewStore(db, fixedTier(plans.TierFree)))

	router := mux.NewRouter()
	sub := router.PathPrefix("/api/tenants/{tenant_id}/pages").Subrouter()
	sub.Handle("", handlers.Create(plans.ResourcePages)).Methods("POST")
	sub.Handle("", handlers.List(plans.ResourcePages)).Methods("GET")
	return router
}

func TestCreateHandler(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages",
		strings.NewReader(`{"title":"Home","slug":"home","body":"hello"}`)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"slug":"home"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tenants/1/pages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Home"`)
}

func TestCreateHandlerValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages",
		strings.NewReader(`{"title":"","slug":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateHandlerSlugConflict(t *testing.T) {
	router := newTestRouter(t)

	body := `{"title":"Home","slug":"home"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateHandlerQuotaExceeded(t *testing.T) {
	router := newTestRouter(t)

	// Free tier allows 10 pages.
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages",
			strings.NewReader(fmt.Sprintf(`{"title":"P","slug":"p%d"}`, i))))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tenants/1/pages",
		strings.NewReader(`{"title":"P","slug":"over"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
