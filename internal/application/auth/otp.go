package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-shop-auth/internal/domain"
	"github.com/go-shop-auth/internal/observability"
	"github.com/go-shop-auth/internal/pkg/id"
	pkgtoken "github.com/go-shop-auth/internal/pkg/token"
	"github.com/go-shop-auth/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// RequestLoginCode re-checks the password and emails a login code. The code
// is a second factor on top of the password, not a replacement for it.
func (s *service) RequestLoginCode(ctx context.Context, req LoginCodeRequest) error {
	req.normalize()
	if err := validate.Struct(&req); err != nil {
		return badRequest(err)
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return dependency("get user", err)
	}
	if !u.Active {
		return fmt.Errorf("account disabled: %w", domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return fmt.Errorf("invalid password: %w", domain.ErrInvalidCredentials)
	}
	return s.issue(ctx, u.Email, domain.PurposeLogin)
}

// RequestRegistrationCode emails a registration code to an address that has
// no account yet. No account is created here.
func (s *service) RequestRegistrationCode(ctx context.Context, req RegistrationCodeRequest) error {
	req.normalize()
	if err := validate.Struct(&req); err != nil {
		return badRequest(err)
	}
	if err := s.ensureNoAccount(ctx, req.Email); err != nil {
		return err
	}
	return s.issue(ctx, req.Email, domain.PurposeRegistration)
}

func (s *service) VerifyLoginCode(ctx context.Context, req VerifyLoginCodeRequest) (*LoginResult, error) {
	req.normalize()
	if err := validate.Struct(&req); err != nil {
		return nil, badRequest(err)
	}
	if _, err := s.consume(ctx, req.Email, req.OTP, domain.PurposeLogin); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, dependency("get user", err)
	}
	if !u.Active {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrInvalidCredentials)
	}
	return s.startSession(ctx, u)
}

// VerifyRegistrationCode consumes the registration code and only then
// creates the account from the payload supplied here.
func (s *service) VerifyRegistrationCode(ctx context.Context, req VerifyRegistrationCodeRequest) (*LoginResult, error) {
	req.normalize()
	if err := validate.Struct(&req); err != nil {
		return nil, badRequest(err)
	}
	if err := s.ensureNoAccount(ctx, req.Email); err != nil {
		return nil, err
	}
	u, err := s.newUser(req.Name, req.Email, req.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	if _, err := s.consume(ctx, req.Email, req.OTP, domain.PurposeRegistration); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("user already exists: %w", domain.ErrConflict)
		}
		return nil, dependency("create user", err)
	}
	slog.Info("account registered", "user_id", u.UserID, "email", u.Email)
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Role)
	if err != nil {
		return nil, dependency("sign token", err)
	}
	return &LoginResult{Token: bearer, User: u}, nil
}

// issue stores a fresh code for email, replacing any pending one, and sends
// it. A failed or timed-out send discards the stored code.
func (s *service) issue(ctx context.Context, email string, purpose domain.Purpose) error {
	code, err := pkgtoken.NewNumericCode()
	if err != nil {
		return dependency("generate otp", err)
	}
	now := s.now()
	rec := &domain.OneTimeCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.otpTTL).Unix(),
	}
	if err := s.otps.Put(ctx, rec); err != nil {
		return dependency("store otp", err)
	}

	if err := s.dispatch(ctx, email, code, purpose); err != nil {
		s.metrics.OTPDispatchFailed(string(purpose))
		slog.Warn("otp dispatch failed", "email", email, "purpose", purpose, "err", err)
		if derr := s.otps.Discard(context.WithoutCancel(ctx), email, code); derr != nil {
			slog.Warn("failed to discard undelivered otp", "email", email, "err", derr)
		}
		return fmt.Errorf("send otp: %w: %w", domain.ErrNotification, err)
	}
	s.metrics.OTPIssued(string(purpose))
	slog.Info("otp issued", "email", email, "purpose", purpose)
	return nil
}

// dispatch sends the code and gives up after notifyTimeout even when the
// mailer ignores its context.
func (s *service) dispatch(ctx context.Context, email, code string, purpose domain.Purpose) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	subject, body := otpMessage(purpose, code, int(s.otpTTL.Minutes()))
	errc := make(chan error, 1)
	go func() { errc <- s.mailer.SendEmail(ctx, email, subject, body) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func otpMessage(purpose domain.Purpose, code string, minutes int) (subject, body string) {
	if minutes < 1 {
		minutes = 1
	}
	switch purpose {
	case domain.PurposeRegistration:
		return "Your Registration OTP",
			fmt.Sprintf("Your OTP for registration is: %s. This OTP will expire in %d minutes.", code, minutes)
	default:
		return "Your Login OTP",
			fmt.Sprintf("Your OTP for login is: %s. This OTP will expire in %d minutes.", code, minutes)
	}
}

func (s *service) consume(ctx context.Context, email, code string, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	rec, err := s.otps.Consume(ctx, email, code, purpose, s.now())
	switch {
	case errors.Is(err, domain.ErrInvalidCode):
		s.metrics.OTPVerified(string(purpose), observability.ResultInvalid)
		return nil, fmt.Errorf("invalid otp: %w", domain.ErrInvalidCode)
	case err != nil:
		s.metrics.OTPVerified(string(purpose), observability.ResultError)
		return nil, dependency("consume otp", err)
	}
	s.metrics.OTPVerified(string(purpose), observability.ResultSuccess)
	return rec, nil
}

func (s *service) ensureNoAccount(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return fmt.Errorf("user already exists: %w", domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return dependency("get user", err)
	}
	return nil
}

func (s *service) newUser(name, email, password, role string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, badRequest(err)
		}
		return nil, dependency("hash password", err)
	}
	now := s.now().UTC()
	return &domain.User{
		UserID:       id.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
