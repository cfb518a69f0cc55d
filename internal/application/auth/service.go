package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-shop-auth/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	RequestLoginCode(ctx context.Context, req LoginCodeRequest) error
	VerifyLoginCode(ctx context.Context, req VerifyLoginCodeRequest) (*LoginResult, error)
	RequestRegistrationCode(ctx context.Context, req RegistrationCodeRequest) error
	VerifyRegistrationCode(ctx context.Context, req VerifyRegistrationCodeRequest) (*LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	GetAccount(ctx context.Context, userID string) (*domain.User, error)
	EnsureAdmin(ctx context.Context, email, name, password string) error
}

// LoginResult is returned by every path that mints a session token.
type LoginResult struct {
	Token string
	User  *domain.User
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, email string, updates map[string]interface{}) error
}

// OTPStore holds at most one pending code per email. Consume must check and
// delete in a single atomic step so a code verifies at most once.
type OTPStore interface {
	Put(ctx context.Context, c *domain.OneTimeCode) error
	Consume(ctx context.Context, email, code string, purpose domain.Purpose, now time.Time) (*domain.OneTimeCode, error)
	Discard(ctx context.Context, email, code string) error
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type jwtSigner interface {
	Sign(userID, role string) (string, error)
}

type otpMetrics interface {
	OTPIssued(purpose string)
	OTPDispatchFailed(purpose string)
	OTPVerified(purpose, result string)
}

type ServiceDeps struct {
	UserRepo      userStore
	OTPStore      OTPStore
	Mailer        mailer
	JWTProvider   jwtSigner
	Metrics       otpMetrics
	OTPTTL        time.Duration
	NotifyTimeout time.Duration
	BcryptCost    int
	// Now defaults to time.Now.
	Now func() time.Time
}

type service struct {
	users         userStore
	otps          OTPStore
	mailer        mailer
	jwtProvider   jwtSigner
	metrics       otpMetrics
	otpTTL        time.Duration
	notifyTimeout time.Duration
	bcryptCost    int
	now           func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:         deps.UserRepo,
		otps:          deps.OTPStore,
		mailer:        deps.Mailer,
		jwtProvider:   deps.JWTProvider,
		metrics:       deps.Metrics,
		otpTTL:        deps.OTPTTL,
		notifyTimeout: deps.NotifyTimeout,
		bcryptCost:    deps.BcryptCost,
		now:           deps.Now,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.otpTTL <= 0 {
		s.otpTTL = 5 * time.Minute
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 5 * time.Second
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	return s
}

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrDependency, err)
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
}

type noopMetrics struct{}

func (noopMetrics) OTPIssued(string)           {}
func (noopMetrics) OTPDispatchFailed(string)   {}
func (noopMetrics) OTPVerified(string, string) {}
