package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-shop-auth/internal/application/auth"
)

// AdminHandler serves support lookups for admins.
type AdminHandler struct {
	svc auth.Service
}

func NewAdminHandler(svc auth.Service) *AdminHandler { return &AdminHandler{svc: svc} }

func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: toSafeUser(u)})
}
