// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, "Operation completed")
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//	httputil.WriteForbidden(w, "Insufficient permissions")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req CreateRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
//	slug, ok := httputil.ParsePathStringOrError(w, r, "slug")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	offset, err := httputil.ParseQueryInt(r, "offset", 0)
//
// # Validation
//
//	if !httputil.RequireNonEmpty(w, req.Name, "name") {
//		return
//	}
//
// # Middleware
//
// Request-body guards that sit in front of the JSON handlers:
//
//	router.Use(httputil.ContentTypeMiddleware)
//	router.Use(httputil.MaxBytesMiddleware(1 << 20)) // 1MB
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
package httputil
