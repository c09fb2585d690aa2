package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/origolabs/origo/pkg/contextkeys"
	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/tenants"
)

// TenantHeader lets API callers name the tenant explicitly without a
// route segment.
const TenantHeader = "X-Origo-Tenant"

// TenantContextMiddleware resolves the active tenant for the request and
// stores it in the context.
//
// An explicit tenant id the subject may not access is a hard 403. A
// request that matches no resolution rule at all continues without a
// tenant; routes that cannot work tenant-less use RequireTenant.
func TenantContextMiddleware(resolver *tenants.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			req := tenants.Request{
				ExplicitTenantID: explicitTenantID(r),
				SessionID:        GetSessionID(ctx),
				Host:             r.Host,
			}

			tenant, err := resolver.Resolve(ctx, GetSubject(ctx), req)
			if err != nil {
				switch {
				case errors.Is(err, tenants.ErrNoResolution):
					next.ServeHTTP(w, r)
				case tenants.IsAccessDenied(err):
					httputil.WriteForbidden(w, "Access to this tenant is denied")
				case errors.Is(err, tenants.ErrTenantNotFound):
					httputil.WriteNotFoundError(w, "Tenant not found")
				default:
					observability.FromContext(ctx).WithError(err).Error("tenant resolution failed")
					httputil.WriteInternalError(w, err)
				}
				return
			}

			ctx = context.WithValue(ctx, contextkeys.TenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that resolved no tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenant(r.Context()) == nil {
			httputil.WriteBadRequest(w, "No tenant in request context")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetTenant returns the resolved tenant, or nil when resolution found
// none.
func GetTenant(ctx context.Context) *tenants.Tenant {
	tenant, _ := ctx.Value(contextkeys.TenantKey).(*tenants.Tenant)
	return tenant
}

// explicitTenantID reads the caller-supplied tenant id from the route or
// the tenant header. Zero means the caller named no tenant.
func explicitTenantID(r *http.Request) int64 {
	if raw, ok := mux.Vars(r)["tenant_id"]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id
		}
	}
	if raw := r.Header.Get(TenantHeader); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
