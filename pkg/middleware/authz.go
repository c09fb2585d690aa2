package middleware

import (
	"net/http"

	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/rbac"
)

// RequirePermission guards a route behind one (resource, action) pair,
// evaluated against the subject and tenant already on the context.
// Requests without a resolved tenant are refused; a permission check
// with no tenant scope has no answer.
func RequirePermission(engine *rbac.Engine, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenant := GetTenant(ctx)
			if tenant == nil {
				httputil.WriteBadRequest(w, "No tenant in request context")
				return
			}

			err := engine.Require(ctx, GetSubject(ctx), tenant.ID, resource, action)
			if err != nil {
				if rbac.IsPermissionDenied(err) {
					httputil.WriteForbidden(w, err.Error())
					return
				}
				observability.FromContext(ctx).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
