package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"chatsphere/internal/auth"
	"chatsphere/internal/models"
	"chatsphere/internal/storage"
)

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int    `json:"user_id"`
	Username    string `json:"username"`
}

// LoginHandler exchanges username/password for the access token the
// websocket endpoint requires.
func LoginHandler(store storage.Gateway, tokens *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.Credentials

		dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("[LOGIN] Decode error: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		payload.Username = strings.TrimSpace(payload.Username)
		if payload.Username == "" || payload.Password == "" {
			http.Error(w, "Username and password are required", http.StatusBadRequest)
			return
		}

		user, err := store.GetUserByUsername(dbctx, payload.Username)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				log.Printf("[LOGIN] User not found: %s", payload.Username)
				http.Error(w, "Invalid username or password", http.StatusUnauthorized)
				return
			}
			log.Printf("[LOGIN] Database error for %s: %v", payload.Username, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !auth.VerifyPassword(payload.Password, user.Password_Hash) {
			log.Printf("[LOGIN] Invalid password for user: %s", payload.Username)
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}

		token, err := tokens.GenerateToken(user.ID)
		if err != nil {
			log.Printf("[LOGIN] Token generation failed for %d: %v", user.ID, err)
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LoginResponse{
			AccessToken: token,
			UserID:      user.ID,
			Username:    user.Username,
		})
	}
}
