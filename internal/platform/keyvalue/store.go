package keyvalue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/medassist/api/internal/platform/config"
)

// NewClient opens a Redis client from the configured URI.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("keyvalue: parse redis uri: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping verifies connectivity for readiness checks.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("keyvalue: client is nil")
	}
	return client.Ping(ctx).Err()
}
