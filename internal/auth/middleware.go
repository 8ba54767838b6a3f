package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey keeps our context values private to this package.
type contextKey string

const (
	userIDKey      contextKey = "userID"
	accessTokenKey contextKey = "accessToken"
)

// CookieName is the HttpOnly cookie that carries the session token.
const CookieName = "token"

// Verifier resolves a raw token to a user ID. The session provider
// implements it so revoked tokens are refused too.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// RequireAuth rejects requests without a valid session with 401 and
// stores the user ID and raw token in the context otherwise.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}
			userID, err := v.VerifyToken(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), userID, token)))
		})
	}
}

// OptionalAuth attaches the session when one is present and valid, and
// lets the request through either way.
func OptionalAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := TokenFromRequest(r); token != "" {
				if userID, err := v.VerifyToken(r.Context(), token); err == nil && userID != "" {
					r = r.WithContext(WithSession(r.Context(), userID, token))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
}

// WithSession returns ctx carrying the authenticated user. Exported for
// handler tests that bypass the middleware.
func WithSession(ctx context.Context, userID, token string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, accessTokenKey, token)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// AccessTokenFromContext returns the raw token the request was
// authenticated with.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(accessTokenKey).(string)
	return tok, ok && tok != ""
}

// TokenFromRequest prefers the cookie and falls back to a Bearer header
// for non-browser clients such as opsctl.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
