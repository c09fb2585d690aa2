// Package contextkeys defines typed context keys shared across middleware
// and handlers. Keeping them in one leaf package avoids import cycles
// between the middleware chain and the packages that read its output.
package contextkeys

// Key is the private type for context values set by middleware.
type Key string

const (
	// SubjectKey holds the authenticated *auth.Subject, set by
	// middleware.SubjectMiddleware. Nil / absent means anonymous.
	SubjectKey Key = "subject"

	// TenantKey holds the resolved *tenants.Tenant, set by
	// middleware.TenantContextMiddleware. Absent when no resolution
	// signal produced a tenant.
	TenantKey Key = "tenant"

	// SessionIDKey holds the caller's session id, extracted from the
	// session cookie before tenant resolution runs.
	SessionIDKey Key = "session_id"

	// RequestIDKey holds the per-request correlation id, set by
	// middleware.RequestIDMiddleware. Always present behind the chain.
	RequestIDKey Key = "request_id"
)
