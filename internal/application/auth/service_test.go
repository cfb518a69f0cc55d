package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-shop-auth/internal/domain"
	"github.com/go-shop-auth/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

type fixture struct {
	svc     Service
	users   *memUsers
	otps    *memOTPs
	mail    *capturingMailer
	metrics *countingMetrics
	clock   *time.Time
}

func newFixture(t *testing.T, users ...*domain.User) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		users:   newMemUsers(users...),
		otps:    newMemOTPs(),
		mail:    newCapturingMailer(),
		metrics: newCountingMetrics(),
		clock:   &now,
	}
	f.svc = NewService(ServiceDeps{
		UserRepo:      f.users,
		OTPStore:      f.otps,
		Mailer:        f.mail,
		JWTProvider:   stubSigner{},
		Metrics:       f.metrics,
		OTPTTL:        5 * time.Minute,
		NotifyTimeout: time.Second,
		BcryptCost:    bcrypt.MinCost,
		Now:           func() time.Time { return *f.clock },
	})
	return f
}

func (f *fixture) codeSentTo(t *testing.T, email string) string {
	t.Helper()
	code := codePattern.FindString(f.mail.last(email))
	require.NotEmpty(t, code, "no code mailed to %s", email)
	return code
}

func existingUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{
		UserID:       id.New(),
		Email:        email,
		Name:         "Alice",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Active:       true,
	}
}

// --- login OTP ---

func TestLoginOTP_RequestThenVerify_IssuesSession(t *testing.T) {
	u := existingUser(t, "alice@example.com", "s3cret")
	f := newFixture(t, u)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "Alice@Example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")

	res, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: " " + code + " "})
	require.NoError(t, err)
	assert.Equal(t, "token-"+u.UserID+"-user", res.Token)
	assert.Equal(t, u.UserID, res.User.UserID)
	require.NotNil(t, res.User.LastLoginAt)
	assert.Equal(t, 1, f.metrics.issued["login"])
	assert.Equal(t, 1, f.metrics.verified["login/success"])
}

func TestLoginOTP_SecondVerifyWithSameCode_Fails(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")

	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code})
	require.NoError(t, err)

	_, err = f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Equal(t, 1, f.metrics.verified["login/invalid"])
}

func TestLoginOTP_NewCodeSupersedesPrevious(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()
	req := LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}

	require.NoError(t, f.svc.RequestLoginCode(ctx, req))
	first := f.codeSentTo(t, "alice@example.com")
	require.NoError(t, f.svc.RequestLoginCode(ctx, req))
	second := f.codeSentTo(t, "alice@example.com")
	if first == second {
		t.Skip("random codes collided")
	}

	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: first})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: second})
	assert.NoError(t, err)
}

func TestLoginOTP_UnknownEmail_NotFoundAndNoRecord(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RequestLoginCode(context.Background(), LoginCodeRequest{Email: "ghost@example.com", Password: "x"})

	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, pending := f.otps.pending("ghost@example.com")
	assert.False(t, pending)
	assert.Empty(t, f.mail.last("ghost@example.com"))
}

func TestLoginOTP_WrongPassword_InvalidCredentialsAndNoRecord(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))

	err := f.svc.RequestLoginCode(context.Background(), LoginCodeRequest{Email: "alice@example.com", Password: "nope"})

	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, pending := f.otps.pending("alice@example.com")
	assert.False(t, pending)
}

func TestLoginOTP_NeverIssuedCode_InvalidCode(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))

	_, err := f.svc.VerifyLoginCode(context.Background(), VerifyLoginCodeRequest{Email: "alice@example.com", OTP: "123456"})

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestLoginOTP_ExpiredCode_InvalidCode(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")

	*f.clock = f.clock.Add(5 * time.Minute)
	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestLoginOTP_RepeatedWrongGuesses_BurnCode(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")
	wrong := "100000"
	if code == wrong {
		wrong = "100001"
	}

	for i := 0; i < domain.MaxCodeAttempts; i++ {
		_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: wrong})
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}
	_, ok := f.otps.pending("alice@example.com")
	assert.False(t, ok)

	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestLoginOTP_AccountDeletedAfterIssue_NotFound(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")
	f.users.mu.Lock()
	delete(f.users.users, "alice@example.com")
	f.users.mu.Unlock()

	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoginOTP_MissingFields_BadRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com"}), domain.ErrBadRequest)
	_, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "not-an-email", OTP: "123456"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestLoginOTP_ConcurrentVerify_AtMostOneSucceeds(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyLoginCode(ctx, VerifyLoginCodeRequest{Email: "alice@example.com", OTP: code}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

// --- registration OTP ---

func TestRegistrationOTP_VerifyCreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestRegistrationCode(ctx, RegistrationCodeRequest{Email: "new@example.com"}))
	code := f.codeSentTo(t, "new@example.com")

	res, err := f.svc.VerifyRegistrationCode(ctx, VerifyRegistrationCodeRequest{
		Name: "A", Email: "new@example.com", Password: "x", OTP: code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, domain.RoleUser, res.User.Role)

	u, err := f.users.GetByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "A", u.Name)
	assert.True(t, u.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("x")))
}

func TestRegistrationOTP_RequestAloneCreatesNoAccount(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.RequestRegistrationCode(context.Background(), RegistrationCodeRequest{Email: "new@example.com"}))

	assert.Equal(t, 0, f.users.count())
	c, pending := f.otps.pending("new@example.com")
	require.True(t, pending)
	assert.Equal(t, domain.PurposeRegistration, c.Purpose)
	assert.Equal(t, f.clock.Add(5*time.Minute).Unix(), c.ExpiresAt)
}

func TestRegistrationOTP_ExistingAccount_Conflict(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))

	err := f.svc.RequestRegistrationCode(context.Background(), RegistrationCodeRequest{Email: "ALICE@example.com"})

	assert.ErrorIs(t, err, domain.ErrConflict)
	_, pending := f.otps.pending("alice@example.com")
	assert.False(t, pending)
}

func TestRegistrationOTP_VerifyWhenAccountAppeared_ConflictAndCodeKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestRegistrationCode(ctx, RegistrationCodeRequest{Email: "new@example.com"}))
	code := f.codeSentTo(t, "new@example.com")
	require.NoError(t, f.users.Create(ctx, existingUser(t, "new@example.com", "other")))

	_, err := f.svc.VerifyRegistrationCode(ctx, VerifyRegistrationCodeRequest{
		Name: "A", Email: "new@example.com", Password: "x", OTP: code,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, pending := f.otps.pending("new@example.com")
	assert.True(t, pending)
}

func TestRegistrationOTP_MissingFields_BadRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyRegistrationCode(context.Background(), VerifyRegistrationCodeRequest{
		Email: "new@example.com", Password: "x", OTP: "123456",
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.ErrorContains(t, err, "name")
}

func TestRegistrationOTP_LoginCodeDoesNotRegister(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, LoginCodeRequest{Email: "alice@example.com", Password: "s3cret"}))
	code := f.codeSentTo(t, "alice@example.com")
	f.users.mu.Lock()
	delete(f.users.users, "alice@example.com")
	f.users.mu.Unlock()

	_, err := f.svc.VerifyRegistrationCode(ctx, VerifyRegistrationCodeRequest{
		Name: "A", Email: "alice@example.com", Password: "x", OTP: code,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Equal(t, 0, f.users.count())
}

// --- dispatch failures ---

func TestIssue_MailerError_NotificationFailureAndCodeDiscarded(t *testing.T) {
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, "new@example.com", "Your Registration OTP", mock.Anything).
		Return(errors.New("smtp down"))
	otps := newMemOTPs()
	metrics := newCountingMetrics()
	svc := NewService(ServiceDeps{
		UserRepo:      newMemUsers(),
		OTPStore:      otps,
		Mailer:        ml,
		JWTProvider:   stubSigner{},
		Metrics:       metrics,
		NotifyTimeout: time.Second,
		BcryptCost:    bcrypt.MinCost,
	})

	err := svc.RequestRegistrationCode(context.Background(), RegistrationCodeRequest{Email: "new@example.com"})

	assert.ErrorIs(t, err, domain.ErrNotification)
	_, pending := otps.pending("new@example.com")
	assert.False(t, pending)
	assert.Equal(t, 1, metrics.failed["registration"])
	assert.Equal(t, 0, metrics.issued["registration"])
	ml.AssertExpectations(t)
}

func TestIssue_MailerTimeout_NotificationFailure(t *testing.T) {
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, "new@example.com", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(500 * time.Millisecond) }).
		Return(nil)
	svc := NewService(ServiceDeps{
		UserRepo:      newMemUsers(),
		OTPStore:      newMemOTPs(),
		Mailer:        ml,
		JWTProvider:   stubSigner{},
		NotifyTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	err := svc.RequestRegistrationCode(context.Background(), RegistrationCodeRequest{Email: "new@example.com"})

	assert.ErrorIs(t, err, domain.ErrNotification)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

// --- direct password login ---

func TestLogin_Success(t *testing.T) {
	u := existingUser(t, "alice@example.com", "s3cret")
	signer := &mockJWTSigner{}
	signer.On("Sign", u.UserID, domain.RoleUser).Return("bearer", nil)
	svc := NewService(ServiceDeps{
		UserRepo:    newMemUsers(u),
		OTPStore:    newMemOTPs(),
		JWTProvider: signer,
	})

	res, err := svc.Login(context.Background(), LoginRequest{Email: " Alice@example.com", Password: "s3cret"})

	require.NoError(t, err)
	assert.Equal(t, "bearer", res.Token)
	assert.Equal(t, "alice@example.com", res.User.Email)
	signer.AssertExpectations(t)
}

func TestLogin_UnknownEmailAndWrongPassword_SameError(t *testing.T) {
	f := newFixture(t, existingUser(t, "alice@example.com", "s3cret"))
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "s3cret"})
	_, errWrong := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "nope"})

	assert.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_DisabledAccount_InvalidCredentials(t *testing.T) {
	u := existingUser(t, "alice@example.com", "s3cret")
	u.Active = false
	f := newFixture(t, u)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_StoreFailure_Dependency(t *testing.T) {
	svc := NewService(ServiceDeps{UserRepo: failingUsers{}, OTPStore: newMemOTPs(), JWTProvider: stubSigner{}})

	_, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	assert.ErrorIs(t, err, domain.ErrDependency)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

// --- direct registration ---

func TestRegister_CreatesActiveUser(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Register(context.Background(), RegisterRequest{Name: " Bob ", Email: "Bob@Example.com", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, "Bob", u.Name)
	assert.True(t, id.Valid(u.UserID))
	assert.Equal(t, 1, f.users.count())
}

func TestRegister_Duplicate_Conflict(t *testing.T) {
	f := newFixture(t, existingUser(t, "bob@example.com", "pw"))

	_, err := f.svc.Register(context.Background(), RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// --- identity ---

func TestMe_AccountGone_Unauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Me(context.Background(), id.New())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMe_ReturnsAccount(t *testing.T) {
	u := existingUser(t, "alice@example.com", "s3cret")
	f := newFixture(t, u)

	got, err := f.svc.Me(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestGetAccount_MalformedID_BadRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetAccount(context.Background(), "not-a-ulid")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = f.svc.GetAccount(context.Background(), id.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureAdmin_CreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx, "Admin@Shop.test", "Admin", "pw"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "admin@shop.test", "Admin", "other"))

	assert.Equal(t, 1, f.users.count())
	u, err := f.users.GetByEmail(ctx, "admin@shop.test")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("pw")))
}

type failingUsers struct{}

func (failingUsers) Create(context.Context, *domain.User) error { return errors.New("boom") }
func (failingUsers) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("boom")
}
func (failingUsers) GetByID(context.Context, string) (*domain.User, error) {
	return nil, errors.New("boom")
}
func (failingUsers) Update(context.Context, string, map[string]interface{}) error {
	return errors.New("boom")
}
