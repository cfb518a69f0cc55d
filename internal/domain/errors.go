package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid otp")

	// ErrNotification marks a failed or timed-out dispatch on the external
	// notification channel.
	ErrNotification = errors.New("notification failure")
	// ErrDependency marks a store or other backing service failure.
	ErrDependency = errors.New("dependency failure")
)
