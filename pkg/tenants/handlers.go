package tenants

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/contextkeys"
	"github.com/origolabs/origo/pkg/httputil"
)

// Handlers provides HTTP handlers for tenant context and membership listing
type Handlers struct {
	store    *Store
	sessions *SessionStore
}

// NewHandlers creates new tenant handlers. sessions may be nil, disabling
// session pinning.
func NewHandlers(store *Store, sessions *SessionStore) *Handlers {
	return &Handlers{store: store, sessions: sessions}
}

// RegisterRoutes registers all tenant routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/tenant", h.Current).Methods("GET")
	router.HandleFunc("/api/me/tenants", h.ListMine).Methods("GET")
	router.HandleFunc("/api/me/tenant", h.Switch).Methods("PUT")
}

// Current reports the tenant the request resolved to
func (h *Handlers) Current(w http.ResponseWriter, r *http.Request) {
	tenant, _ := r.Context().Value(contextkeys.TenantKey).(*Tenant)
	if tenant == nil {
		httputil.WriteNotFoundError(w, "No tenant resolved for this request")
		return
	}
	httputil.WriteSuccess(w, tenant)
}

// ListMine lists the tenants the caller belongs to
func (h *Handlers) ListMine(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if subject == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	list, err := h.store.ListMembershipTenants(r.Context(), subject.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// Switch pins the caller's session to one of their tenants, so later
// requests resolve to it without naming it explicitly
func (h *Handlers) Switch(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if subject == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	sessionID, _ := r.Context().Value(contextkeys.SessionIDKey).(string)
	if sessionID == "" || h.sessions == nil {
		httputil.WriteBadRequest(w, "No session to pin")
		return
	}

	var req struct {
		TenantID int64 `json:"tenant_id"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil || req.TenantID == 0 {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if !subject.IsSuperadmin() {
		member, err := h.store.IsMember(r.Context(), subject.ID, req.TenantID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		if !member {
			httputil.WriteForbidden(w, "Not a member of this tenant")
			return
		}
	}

	if err := h.sessions.PinTenant(r.Context(), sessionID, req.TenantID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func subjectFrom(r *http.Request) *auth.Subject {
	subject, _ := r.Context().Value(contextkeys.SubjectKey).(*auth.Subject)
	return subject
}
