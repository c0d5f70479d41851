package keyvalue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitCommands is the subset of Redis commands the limiter needs.
type RateLimitCommands interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter applies fixed-window counting per subject and endpoint. Store
// failures fail open: availability of the guarded endpoint wins over strict
// limiting.
type RateLimiter struct {
	client RateLimitCommands
}

// NewRateLimiter wires the limiter over a Redis command surface.
func NewRateLimiter(client RateLimitCommands) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow increments the window counter and reports whether the request fits
// under max. The first hit in a window arms the window expiry.
func (r *RateLimiter) Allow(ctx context.Context, subject, endpoint string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("rl:%s:%s", subject, endpoint)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("keyvalue: rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return true, fmt.Errorf("keyvalue: rate limit expire: %w", err)
		}
	}
	return count <= int64(max), nil
}
