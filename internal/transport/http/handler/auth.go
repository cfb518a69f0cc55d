package handler

import (
	"net/http"

	"github.com/go-shop-auth/internal/application/auth"
	"github.com/go-shop-auth/internal/transport/http/middleware"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RequestLoginCode(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent successfully"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyLoginCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyLoginCode(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Token: res.Token, User: toSafeUser(res.User)})
}

func (h *AuthHandler) GenerateRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RequestRegistrationCode(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent successfully"})
}

func (h *AuthHandler) VerifyRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRegistrationCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyRegistrationCode(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		Message: "User registered successfully",
		Token:   res.Token,
		User:    toSafeUser(res.User),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Token: res.Token, User: toSafeUser(res.User)})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.svc.Register(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "User registered successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Me(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: toSafeUser(u)})
}
