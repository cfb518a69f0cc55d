package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-shop-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp:"

// consumeScript returns and deletes the hash at KEYS[1] only when code
// (ARGV[1]) and purpose (ARGV[2]) match and expires_at is after ARGV[3].
// A live record that does not match counts a miss; the miss that reaches
// ARGV[4] deletes it.
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'code', 'purpose', 'expires_at', 'created_at')
if not v[1] or tonumber(v[3]) <= tonumber(ARGV[3]) then
	return false
end
if v[1] ~= ARGV[1] or v[2] ~= ARGV[2] then
	if redis.call('HINCRBY', KEYS[1], 'attempts', 1) >= tonumber(ARGV[4]) then
		redis.call('DEL', KEYS[1])
	end
	return false
end
redis.call('DEL', KEYS[1])
return v
`)

// discardScript deletes KEYS[1] only while it still holds code ARGV[1].
var discardScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// OTPStore keeps one pending code per email in a Redis hash whose key
// expires together with the code.
type OTPStore struct {
	client redis.UniversalClient
}

func NewOTPStore(client redis.UniversalClient) *OTPStore {
	return &OTPStore{client: client}
}

func key(email string) string {
	return keyPrefix + domain.NormalizeEmail(email)
}

// Put replaces any pending code for c.Email.
func (s *OTPStore) Put(ctx context.Context, c *domain.OneTimeCode) error {
	c.Email = domain.NormalizeEmail(c.Email)
	k := key(c.Email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"code", c.Code,
			"purpose", string(c.Purpose),
			"created_at", strconv.FormatInt(c.CreatedAt, 10),
			"expires_at", strconv.FormatInt(c.ExpiresAt, 10),
		)
		pipe.ExpireAt(ctx, k, time.Unix(c.ExpiresAt, 0))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put otp: %w", err)
	}
	return nil
}

// Consume atomically checks and deletes the pending code for email.
func (s *OTPStore) Consume(ctx context.Context, email, code string, purpose domain.Purpose, now time.Time) (*domain.OneTimeCode, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key(email)},
		code, string(purpose), now.Unix(), domain.MaxCodeAttempts).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no matching code: %w", domain.ErrInvalidCode)
	}
	if err != nil {
		return nil, fmt.Errorf("redis consume otp: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("redis consume otp: unexpected reply length %d", len(res))
	}
	expiresAt, err := strconv.ParseInt(res[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis consume otp: parse expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(res[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis consume otp: parse created_at: %w", err)
	}
	return &domain.OneTimeCode{
		Email:     domain.NormalizeEmail(email),
		Code:      res[0],
		Purpose:   domain.Purpose(res[1]),
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Discard removes the pending code for email if it still equals code.
func (s *OTPStore) Discard(ctx context.Context, email, code string) error {
	if err := discardScript.Run(ctx, s.client, []string{key(email)}, code).Err(); err != nil {
		return fmt.Errorf("redis discard otp: %w", err)
	}
	return nil
}
