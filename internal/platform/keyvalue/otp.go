package keyvalue

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpTTL = 5 * time.Minute
	// Consumed codes linger briefly so a duplicate verify attempt maps to
	// "expired" rather than "invalid".
	otpConsumedTTL = time.Minute

	otpConsumedMarker = "consumed"
)

var (
	// ErrOTPNotFound is returned when the phone has no code at all, live or
	// recently consumed.
	ErrOTPNotFound = errors.New("keyvalue: otp not found")
	// ErrOTPExpired is returned when the code for the phone was already used.
	ErrOTPExpired = errors.New("keyvalue: otp expired")
	// ErrOTPMismatch is returned when a live code exists but does not match.
	ErrOTPMismatch = errors.New("keyvalue: otp mismatch")
)

// OTPCommands is the subset of Redis commands the OTP store needs.
type OTPCommands interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// OTPStore issues and verifies single-use phone verification codes.
type OTPStore struct {
	client OTPCommands
}

// NewOTPStore wires the store over a Redis command surface.
func NewOTPStore(client OTPCommands) *OTPStore {
	return &OTPStore{client: client}
}

// Put stores the code against the phone with the standard lifetime,
// overwriting any earlier unconsumed code.
func (s *OTPStore) Put(ctx context.Context, phone, code string) error {
	if err := s.client.Set(ctx, otpKey(phone), code, otpTTL).Err(); err != nil {
		return fmt.Errorf("keyvalue: store otp: %w", err)
	}
	return nil
}

// Consume verifies the code and marks it used in one pass. A matching code can
// be consumed exactly once.
func (s *OTPStore) Consume(ctx context.Context, phone, code string) error {
	key := otpKey(phone)
	stored, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("keyvalue: load otp: %w", err)
	}
	if stored == otpConsumedMarker {
		return ErrOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrOTPMismatch
	}
	if err := s.client.Set(ctx, key, otpConsumedMarker, otpConsumedTTL).Err(); err != nil {
		return fmt.Errorf("keyvalue: consume otp: %w", err)
	}
	return nil
}

func otpKey(phone string) string {
	return "otp:" + phone
}
