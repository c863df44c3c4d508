package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenValidator is satisfied by the auth manager; the interface keeps this
// package decoupled from it.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, error)
}

// UserID extracts the authenticated user id injected by Authenticate.
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}

// Authenticate reads a bearer token from the Authorization header, falling
// back to the ?token query parameter for websocket clients that cannot set
// headers during the upgrade.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ""

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 {
					tokenString = parts[1]
				}
			}
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				http.Error(w, "Missing authentication token", http.StatusUnauthorized)
				return
			}

			userID, err := validator.ValidateToken(tokenString)
			if err != nil {
				log.Printf("[AUTH] Invalid token from %s: %v", r.RemoteAddr, err)
				http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
