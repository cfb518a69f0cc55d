package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-shop-auth/internal/domain"
	"github.com/stretchr/testify/mock"
)

// --- in-memory stores ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: map[string]*domain.User{}}
	for _, u := range users {
		m.users[domain.NormalizeEmail(u.Email)] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(u.Email)
	if _, ok := m.users[key]; ok {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	cp := *u
	m.users[key] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
}

func (m *memUsers) Update(_ context.Context, email string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if t, ok := updates[fieldLastLoginAt].(time.Time); ok {
		u.LastLoginAt = &t
	}
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type memOTPs struct {
	mu    sync.Mutex
	codes map[string]domain.OneTimeCode
}

func newMemOTPs() *memOTPs { return &memOTPs{codes: map[string]domain.OneTimeCode{}} }

func (m *memOTPs) Put(_ context.Context, c *domain.OneTimeCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Email = domain.NormalizeEmail(c.Email)
	m.codes[c.Email] = *c
	return nil
}

func (m *memOTPs) Consume(_ context.Context, email, code string, purpose domain.Purpose, now time.Time) (*domain.OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(email)
	c, ok := m.codes[key]
	if !ok || c.ExpiresAt <= now.Unix() {
		return nil, fmt.Errorf("no matching code: %w", domain.ErrInvalidCode)
	}
	if c.Code != code || c.Purpose != purpose {
		c.Attempts++
		if c.Attempts >= domain.MaxCodeAttempts {
			delete(m.codes, key)
		} else {
			m.codes[key] = c
		}
		return nil, fmt.Errorf("no matching code: %w", domain.ErrInvalidCode)
	}
	delete(m.codes, key)
	return &c, nil
}

func (m *memOTPs) Discard(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(email)
	if c, ok := m.codes[key]; ok && c.Code == code {
		delete(m.codes, key)
	}
	return nil
}

func (m *memOTPs) pending(email string) (domain.OneTimeCode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[domain.NormalizeEmail(email)]
	return c, ok
}

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

// capturingMailer records the last body sent to each address.
type capturingMailer struct {
	mu   sync.Mutex
	sent map[string]string
}

func newCapturingMailer() *capturingMailer { return &capturingMailer{sent: map[string]string{}} }

func (c *capturingMailer) SendEmail(_ context.Context, to, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[to] = body
	return nil
}

func (c *capturingMailer) last(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[to]
}

type mockJWTSigner struct{ mock.Mock }

func (m *mockJWTSigner) Sign(userID, role string) (string, error) {
	args := m.Called(userID, role)
	return args.String(0), args.Error(1)
}

type stubSigner struct{}

func (stubSigner) Sign(userID, role string) (string, error) { return "token-" + userID + "-" + role, nil }

type countingMetrics struct {
	mu       sync.Mutex
	issued   map[string]int
	failed   map[string]int
	verified map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{issued: map[string]int{}, failed: map[string]int{}, verified: map[string]int{}}
}

func (c *countingMetrics) OTPIssued(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[p]++
}

func (c *countingMetrics) OTPDispatchFailed(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[p]++
}

func (c *countingMetrics) OTPVerified(p, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified[p+"/"+result]++
}
