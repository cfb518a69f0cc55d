package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-shop-auth/internal/domain"
)

// httpError maps a service error to a status code and a user-safe message.
// Only validation errors echo their detail back to the client.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusBadRequest, "user already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, domain.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid or expired otp")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrNotification):
		slog.Error("notification failure", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to send OTP email")
	default:
		slog.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
