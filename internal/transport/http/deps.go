package http

import (
	"context"
	"time"

	"github.com/go-shop-auth/internal/domain"
	jwtinfra "github.com/go-shop-auth/internal/infrastructure/jwt"
	"github.com/go-shop-auth/internal/infrastructure/smtp"
	"github.com/go-shop-auth/internal/observability"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, email string, updates map[string]interface{}) error
}

// OTPRepository is the minimal interface the router requires from a
// pending-code store. Both the DynamoDB and Redis stores satisfy it.
type OTPRepository interface {
	Put(ctx context.Context, c *domain.OneTimeCode) error
	Consume(ctx context.Context, email, code string, purpose domain.Purpose, now time.Time) (*domain.OneTimeCode, error)
	Discard(ctx context.Context, email, code string) error
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    UserRepository
	OTPStore    OTPRepository
	Mailer      smtp.Mailer
	JWTProvider *jwtinfra.Provider
	Metrics     *observability.Metrics
}
