package keyvalue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotLive indicates the refresh token was rotated, revoked or expired.
var ErrTokenNotLive = errors.New("keyvalue: refresh token not live")

// RefreshTokenCommands is the subset of Redis commands the live set needs.
type RefreshTokenCommands interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RefreshTokenStore tracks the live set of refresh tokens by JWT ID. A token
// absent from the set is dead regardless of its signature validity.
type RefreshTokenStore struct {
	client RefreshTokenCommands
}

// NewRefreshTokenStore wires the store over a Redis command surface.
func NewRefreshTokenStore(client RefreshTokenCommands) *RefreshTokenStore {
	return &RefreshTokenStore{client: client}
}

// Insert marks the token live for its remaining lifetime.
func (s *RefreshTokenStore) Insert(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKey(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("keyvalue: insert refresh token: %w", err)
	}
	return nil
}

// Rotate atomically-enough retires the old token before admitting the new
// one: the old entry is removed first so a crash between the two steps errs
// on the side of fewer live tokens, never more.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldJTI, newJTI, userID string, ttl time.Duration) error {
	if err := s.Revoke(ctx, oldJTI); err != nil {
		return err
	}
	return s.Insert(ctx, newJTI, userID, ttl)
}

// Verify reports whether the token is still live, returning its bound user.
func (s *RefreshTokenStore) Verify(ctx context.Context, jti string) (string, error) {
	userID, err := s.client.Get(ctx, refreshKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotLive
	}
	if err != nil {
		return "", fmt.Errorf("keyvalue: verify refresh token: %w", err)
	}
	return userID, nil
}

// Revoke removes the token from the live set.
func (s *RefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, refreshKey(jti)).Err(); err != nil {
		return fmt.Errorf("keyvalue: revoke refresh token: %w", err)
	}
	return nil
}

func refreshKey(jti string) string {
	return "refresh_token:" + jti
}
