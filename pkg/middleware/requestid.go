package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/origolabs/origo/pkg/contextkeys"
)

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns every request a correlation id, honoring
// one supplied by a trusted upstream proxy. The id is echoed on the
// response so callers can quote it in bug reports.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id set by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextkeys.RequestIDKey).(string)
	return id
}
