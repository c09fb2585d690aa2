package middleware

import (
	"net/http"

	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/plans"
	"github.com/origolabs/origo/pkg/quota"
)

// EnforceQuota refuses creation requests once the tenant's plan limit
// for the resource is reached. Reads pass through untouched; quota caps
// what a tenant holds, not what it can look at.
//
// Exhausted quota is 403: the plan forbids the action. 429 stays
// reserved for rate limiting.
func EnforceQuota(guard *quota.Guard, resource plans.ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			tenant := GetTenant(ctx)
			if tenant == nil {
				httputil.WriteBadRequest(w, "No tenant in request context")
				return
			}

			if err := guard.Check(ctx, tenant.ID, resource); err != nil {
				if quota.IsQuotaExceeded(err) {
					httputil.WriteForbidden(w, err.Error())
					return
				}
				observability.FromContext(ctx).WithError(err).Error("quota check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
