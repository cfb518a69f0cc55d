package auth

import (
	"strings"

	"github.com/go-shop-auth/internal/domain"
)

type LoginCodeRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyLoginCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type RegistrationCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyRegistrationCodeRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	OTP      string `json:"otp" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginCodeRequest) normalize() { r.Email = domain.NormalizeEmail(r.Email) }

func (r *VerifyLoginCodeRequest) normalize() {
	r.Email = domain.NormalizeEmail(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *RegistrationCodeRequest) normalize() { r.Email = domain.NormalizeEmail(r.Email) }

func (r *VerifyRegistrationCodeRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = domain.NormalizeEmail(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *LoginRequest) normalize() { r.Email = domain.NormalizeEmail(r.Email) }

func (r *RegisterRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = domain.NormalizeEmail(r.Email)
}
