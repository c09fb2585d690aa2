package rbac

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/httputil"
)

// Handlers provides HTTP handlers for role management
type Handlers struct {
	registry *Registry
}

// NewHandlers creates new role management handlers
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

// RegisterRoutes registers all role management routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/tenants/{tenant_id}/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/api/tenants/{tenant_id}/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}", h.GetRole).Methods("GET")
	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}/permissions", h.UpsertPermission).Methods("PUT")
	router.HandleFunc("/api/tenants/{tenant_id}/roles/{role_id}/permissions/{resource}/{action}", h.RemovePermission).Methods("DELETE")

	router.HandleFunc("/api/tenants/{tenant_id}/subjects/{subject_id}/overrides", h.SetSubjectOverride).Methods("PUT")
	router.HandleFunc("/api/tenants/{tenant_id}/subjects/{subject_id}/overrides/{resource}/{action}", h.ClearSubjectOverride).Methods("DELETE")
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid tenant ID")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		BasedOn     string `json:"based_on"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	basedOn, err := auth.ParseSystemRole(req.BasedOn)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	role := &CustomRole{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		BasedOn:     basedOn,
	}
	if err := h.registry.CreateRole(ctx, role); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// ListRoles lists a tenant's custom roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid tenant ID")
		return
	}

	roles, err := h.registry.ListRoles(ctx, tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, roles)
}

// GetRole retrieves a custom role with its resolved permission view
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	resolved, err := h.registry.ResolveRole(ctx, roleID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, resolved)
}

// UpdateRole updates a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	role, err := h.registry.GetRole(ctx, roleID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		BasedOn     string `json:"based_on"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	basedOn, err := auth.ParseSystemRole(req.BasedOn)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	role.BasedOn = basedOn

	if err := h.registry.UpdateRole(ctx, role); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	if err := h.registry.DeleteRole(ctx, roleID); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListPermissions lists a role's permission overrides
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	overrides, err := h.registry.ListPermissions(ctx, roleID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, overrides)
}

// UpsertPermission adds or replaces one override on a role
func (h *Handlers) UpsertPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	var req struct {
		Resource string `json:"resource"`
		Action   string `json:"action"`
		Allowed  bool   `json:"allowed"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	override := &RoleOverride{
		RoleID:   roleID,
		Resource: req.Resource,
		Action:   req.Action,
		Allowed:  req.Allowed,
	}
	if err := h.registry.UpsertPermission(ctx, override); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, override)
}

// RemovePermission removes one override from a role
func (h *Handlers) RemovePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	roleID, err := pathID(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return
	}

	if err := h.registry.RemovePermission(ctx, roleID, vars["resource"], vars["action"]); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// SetSubjectOverride upserts a per-subject override
func (h *Handlers) SetSubjectOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid tenant ID")
		return
	}
	subjectID, err := pathID(r, "subject_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid subject ID")
		return
	}

	var req struct {
		Resource string `json:"resource"`
		Action   string `json:"action"`
		Allowed  bool   `json:"allowed"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	override := &SubjectOverride{
		SubjectID: subjectID,
		TenantID:  tenantID,
		Resource:  req.Resource,
		Action:    req.Action,
		Allowed:   req.Allowed,
	}
	if err := h.registry.SetSubjectOverride(ctx, override); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, override)
}

// ClearSubjectOverride removes a per-subject override
func (h *Handlers) ClearSubjectOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid tenant ID")
		return
	}
	subjectID, err := pathID(r, "subject_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid subject ID")
		return
	}

	if err := h.registry.ClearSubjectOverride(ctx, subjectID, tenantID, vars["resource"], vars["action"]); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// writeRoleError maps registry errors onto HTTP statuses.
func writeRoleError(w http.ResponseWriter, err error) {
	var nameConflict *RoleNameConflictError
	var inUse *RoleInUseError
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.As(err, &nameConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &inUse):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
