package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-shop-auth/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Error responses carry
// only Message.
type MessageEnvelope struct {
	Message string `json:"message"`
}

// AuthEnvelope wraps every response that hands out a session token.
type AuthEnvelope struct {
	Message string    `json:"message,omitempty"`
	Token   string    `json:"token"`
	User    *SafeUser `json:"user"`
}

// UserEnvelope wraps identity responses.
type UserEnvelope struct {
	User *SafeUser `json:"user"`
}

// SafeUser is the public view of an account.
type SafeUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{ID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Message: msg})
}

// decodeJSON reads a single JSON object from the request body, capped at 64 KiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
