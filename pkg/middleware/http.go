// Package middleware verifies Firebase ID tokens and session cookies on
// incoming HTTP requests and gRPC calls. A verified token is attached to
// the request context and can be read back with TokenFromContext.
package middleware

import (
	"net/http"
	"strings"

	"github.com/StricklySoft/firebase-jwt/pkg/verifier"
)

const (
	// HeaderAuthorization carries the bearer token on HTTP requests.
	HeaderAuthorization = "Authorization"

	// DefaultSessionCookieName is used when SessionCookieMiddleware is given
	// an empty cookie name.
	DefaultSessionCookieName = "session"

	bearerPrefix = "Bearer "
)

// ExtractBearerToken returns the token from an "Authorization: Bearer <t>"
// value. The scheme is matched case-insensitively. It returns "" when the
// value is not a bearer credential.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// HTTPMiddleware verifies the bearer token of every request with v and
// responds 401 Unauthorized when it is missing or invalid. When the token
// cannot be checked at all, for example because Google's key endpoint is
// down, it responds with the error's 5xx status instead.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/me", handleMe)
//	handler := middleware.HTTPMiddleware(fb.IDTokenVerifier())(mux)
func HTTPMiddleware(v verifier.Verifier, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if raw == "" {
				o.reject(r.Context(), "http", "missing_credentials", nil)
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}
			serveVerified(w, r, next, v, raw, o)
		})
	}
}

// SessionCookieMiddleware verifies the session cookie named cookieName
// (DefaultSessionCookieName when empty) and responds 401 Unauthorized when
// it is missing or invalid. Key source failures are answered as in
// HTTPMiddleware.
func SessionCookieMiddleware(v verifier.Verifier, cookieName string, opts ...Option) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				o.reject(r.Context(), "http", "missing_credentials", nil)
				http.Error(w, "missing session cookie", http.StatusUnauthorized)
				return
			}
			serveVerified(w, r, next, v, cookie.Value, o)
		})
	}
}

// serveVerified verifies raw and either calls next with the token in the
// request context or answers the request itself.
func serveVerified(w http.ResponseWriter, r *http.Request, next http.Handler, v verifier.Verifier, raw string, o options) {
	ctx := r.Context()
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		o.reject(ctx, "http", string(v.Kind()), err)
		if status, ok := serverFault(err); ok {
			http.Error(w, "token verification unavailable", status)
			return
		}
		http.Error(w, "token verification failed", http.StatusUnauthorized)
		return
	}
	next.ServeHTTP(w, r.WithContext(ContextWithToken(ctx, tok)))
}
