package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type claimsKey struct{}

// Middleware rejects requests without a valid bearer session token and makes
// the verified claims available through ClaimsFromContext.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractTokenFromHeader(r)
			if token == "" {
				ErrorResponse(w, ErrSessionNotFound)
				return
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				ErrorResponse(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// ExtractTokenFromHeader extracts the token from the Authorization header.
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// JSONResponse writes a JSON response.
func JSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorResponse writes an auth error response.
func ErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	msg := "unauthorized"
	switch {
	case errors.Is(err, ErrSessionExpired):
		msg = "session expired"
	case errors.Is(err, ErrSessionNotFound):
		msg = "session not found"
	case errors.Is(err, ErrUnknownProvider):
		status = http.StatusNotFound
		msg = "unknown provider"
	}
	JSONResponse(w, status, map[string]string{"error": msg})
}
