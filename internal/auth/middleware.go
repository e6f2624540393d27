package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow our values.
type contextKey string

const (
	userIDKey contextKey = "userID"
	tokenKey  contextKey = "token"
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// WHERE THE TOKEN COMES FROM:
//   - "Authorization: Bearer <jwt>"  (API clients)
//   - "Authorization: <jwt>"         (older clients that send the raw token)
//   - the "token" HttpOnly cookie    (browsers after GitHub sign-in)
//
// WHY 403 AND NOT 401?
// Every photo endpoint answers an unauthenticated caller with 403, the same
// status an authenticated non-owner gets. Clients get a single "you may not
// do this" signal and cannot probe which resources exist.
//
// On success both the subject and the raw token go into the context: the
// photo coordinator re-verifies the raw token itself before any mutation.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := TokenFromRequest(r)
			if raw == "" {
				deny(w, "unauthorized", "authentication required")
				return
			}

			userID, err := tokens.ExtractSubject(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					deny(w, "expired_token", "authentication token has expired")
					return
				}
				deny(w, "invalid_token", "invalid authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
// Returns ("", false) when RequireAuth did not run for this request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromContext returns the raw token RequireAuth accepted.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// TokenFromRequest extracts the raw token from the Authorization header,
// falling back to the "token" cookie. It does not verify anything.
func TokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return header
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

func deny(w http.ResponseWriter, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
