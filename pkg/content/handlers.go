package content

import (
	"errors"
	"net/http"

	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/plans"
	"github.com/origolabs/origo/pkg/quota"
)

// Handlers provides HTTP handlers for tenant content
type Handlers struct {
	store *Store
}

// NewHandlers creates new content handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// Create returns the creation handler for one resource. Quota and
// permission middleware are wired by the caller, per route.
func (h *Handlers) Create(resource plans.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
		if !ok {
			return
		}

		var req struct {
			Title string `json:"title"`
			Slug  string `json:"slug"`
			Body  string `json:"body"`
		}
		if err := httputil.ParseJSON(r, &req); err != nil {
			httputil.WriteBadRequest(w, "Invalid request body")
			return
		}
		if req.Title == "" || req.Slug == "" {
			httputil.WriteValidationError(w, "title and slug are required")
			return
		}

		item := &Item{TenantID: tenantID, Title: req.Title, Slug: req.Slug, Body: req.Body}
		if err := h.store.Create(r.Context(), resource, item); err != nil {
			switch {
			case quota.IsQuotaExceeded(err):
				httputil.WriteForbidden(w, err.Error())
			case errors.Is(err, ErrSlugTaken):
				httputil.WriteConflict(w, err.Error())
			default:
				httputil.WriteInternalError(w, err)
			}
			return
		}

		httputil.WriteCreated(w, item)
	}
}

// List returns the listing handler for one resource.
func (h *Handlers) List(resource plans.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
		if !ok {
			return
		}

		items, err := h.store.List(r.Context(), resource, tenantID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteSuccess(w, items)
	}
}

// Delete returns the deletion handler for one resource.
func (h *Handlers) Delete(resource plans.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
		if !ok {
			return
		}
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}

		if err := h.store.Delete(r.Context(), resource, tenantID, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				httputil.WriteNotFoundError(w, err.Error())
				return
			}
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteNoContent(w)
	}
}
