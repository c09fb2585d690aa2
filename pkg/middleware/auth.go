package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/contextkeys"
	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/observability"
)

// SessionCookieName is the cookie holding the caller's session id.
const SessionCookieName = "origo_session"

// SubjectSource resolves a session id to the subject it authenticates.
// Credential verification lives behind this interface; the middleware
// only attaches its result.
type SubjectSource interface {
	SubjectBySession(ctx context.Context, sessionID string) (*auth.Subject, error)
}

// SubjectMiddleware attaches the authenticated subject to the request
// context. Requests without a session cookie, or with an expired one,
// continue anonymously; routes that need identity use RequireSubject.
func SubjectMiddleware(source SubjectSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.SessionIDKey, cookie.Value)

			subject, err := source.SubjectBySession(ctx, cookie.Value)
			if err != nil {
				if !errors.Is(err, auth.ErrSessionNotFound) {
					observability.FromContext(ctx).WithError(err).Warn("subject lookup failed")
				}
				// An expired or broken session is anonymous, not a 500.
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !subject.IsActive {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = context.WithValue(ctx, contextkeys.SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSubject rejects anonymous requests with 401.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetSubject(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSubject returns the authenticated subject, or nil for anonymous
// requests.
func GetSubject(ctx context.Context) *auth.Subject {
	subject, _ := ctx.Value(contextkeys.SubjectKey).(*auth.Subject)
	return subject
}

// GetSessionID returns the caller's session id, empty when absent.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(contextkeys.SessionIDKey).(string)
	return id
}
