package quota

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/origolabs/origo/pkg/httputil"
)

// Handlers provides HTTP handlers for the quota dashboard
type Handlers struct {
	guard *Guard
}

// NewHandlers creates new quota handlers
func NewHandlers(guard *Guard) *Handlers {
	return &Handlers{guard: guard}
}

// RegisterRoutes registers all quota routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/tenants/{tenant_id}/quotas", h.GetQuotas).Methods("GET")
}

// GetQuotas returns usage against limits for every resource type
func (h *Handlers) GetQuotas(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	statuses, err := h.guard.CheckAll(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id": tenantID,
		"quotas":    statuses,
	})
}
