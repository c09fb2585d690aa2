package domains

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/tenants"
)

// Handlers provides HTTP handlers for custom domain management
type Handlers struct {
	verifier *Verifier
}

// NewHandlers creates new domain handlers
func NewHandlers(verifier *Verifier) *Handlers {
	return &Handlers{verifier: verifier}
}

// RegisterRoutes registers all domain routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/tenants/{tenant_id}/domain", h.Configure).Methods("PUT")
	router.HandleFunc("/api/tenants/{tenant_id}/domain", h.Status).Methods("GET")
	router.HandleFunc("/api/tenants/{tenant_id}/domain", h.Remove).Methods("DELETE")
	router.HandleFunc("/api/tenants/{tenant_id}/domain/verify", h.Verify).Methods("POST")
}

// Configure attaches a custom domain and runs the first verification probe
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req struct {
		Domain string `json:"domain"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.verifier.Configure(r.Context(), tenantID, req.Domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// Verify runs one verification attempt
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	result, err := h.verifier.Verify(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// Status reports the current domain configuration
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	result, err := h.verifier.Status(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// Remove detaches the custom domain
func (h *Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}

	if err := h.verifier.Remove(r.Context(), tenantID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDomainFormat):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, ErrNoDomainConfigured):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, tenants.ErrTenantNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case IsAlreadyBound(err):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
