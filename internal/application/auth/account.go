package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-shop-auth/internal/domain"
	"github.com/go-shop-auth/internal/pkg/id"
	"github.com/go-shop-auth/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const fieldLastLoginAt = "last_login_at"

// Login is the password-only path. Unknown email, disabled account and wrong
// password all fail with the same error.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.normalize()
	if err := validate.Struct(&req); err != nil {
		return nil, badRequest(err)
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, dependency("get user", err)
	}
	if err != nil || !u.Active {
		return nil, fmt.Errorf("login: %w", domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("login: %w", domain.ErrInvalidCredentials)
	}
	return s.startSession(ctx, u)
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
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
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("user already exists: %w", domain.ErrConflict)
		}
		return nil, dependency("create user", err)
	}
	slog.Info("account registered", "user_id", u.UserID, "email", u.Email)
	return u, nil
}

// Me resolves the account behind a verified token. An account that no
// longer exists or was disabled makes the token unusable.
func (s *service) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("account gone: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, dependency("get user", err)
	}
	if !u.Active {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrUnauthorized)
	}
	return u, nil
}

func (s *service) GetAccount(ctx context.Context, userID string) (*domain.User, error) {
	if !id.Valid(userID) {
		return nil, fmt.Errorf("%w: malformed account id", domain.ErrBadRequest)
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, dependency("get user", err)
	}
	return u, nil
}

// EnsureAdmin creates an admin account for email unless one already exists.
func (s *service) EnsureAdmin(ctx context.Context, email, name, password string) error {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: admin email and password required", domain.ErrBadRequest)
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			slog.Warn("bootstrap admin email belongs to a non-admin account", "email", email)
		}
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return dependency("get user", err)
	}
	u, err := s.newUser(name, email, password, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.users.Create(ctx, u); err != nil && !errors.Is(err, domain.ErrConflict) {
		return dependency("create admin", err)
	}
	slog.Info("bootstrap admin created", "email", email)
	return nil
}

// startSession mints the bearer token and stamps last_login_at. The stamp
// is best-effort.
func (s *service) startSession(ctx context.Context, u *domain.User) (*LoginResult, error) {
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Role)
	if err != nil {
		return nil, dependency("sign token", err)
	}
	now := s.now().UTC()
	if err := s.users.Update(ctx, u.Email, map[string]interface{}{fieldLastLoginAt: now}); err != nil {
		slog.Warn("failed to record last login", "user_id", u.UserID, "err", err)
	} else {
		u.LastLoginAt = &now
	}
	return &LoginResult{Token: bearer, User: u}, nil
}
