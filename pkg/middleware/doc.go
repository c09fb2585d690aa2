// Package middleware provides the HTTP middleware chain: request ids,
// subject authentication, tenant resolution, rate limiting, permission
// checks and quota enforcement.
//
// CRITICAL: Middleware Ordering Requirements
//
// The chain only works in this order:
//
//	RequestID -> Subject -> TenantContext -> RateLimit -> (per-route) RequirePermission / EnforceQuota
//
// 1. RequestIDMiddleware must run first so every later log line carries
// the correlation id.
//
// 2. SubjectMiddleware must run before TenantContextMiddleware: tenant
// resolution validates explicit ids and session pins against the
// subject's memberships, and falls back to the subject's oldest
// membership. Reversing the two silently disables every
// membership-aware resolution rule.
//
// 3. TenantContextMiddleware must run before RequirePermission and
// EnforceQuota: both read the resolved tenant from the context and
// fail closed when it is missing.
//
// RequirePermission and EnforceQuota are route-level, applied only to
// the mutating routes that need them.
package middleware
