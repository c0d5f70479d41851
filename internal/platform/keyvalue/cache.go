package keyvalue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchCacheTTL = 3 * time.Minute

// ErrCacheMiss indicates no cached payload exists for the key.
var ErrCacheMiss = errors.New("keyvalue: cache miss")

// CacheCommands is the subset of Redis commands the cache needs.
type CacheCommands interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SearchCache holds short-lived serialised search responses keyed by a hash
// of the normalised query.
type SearchCache struct {
	client CacheCommands
	ttl    time.Duration
}

// NewSearchCache wires the cache over a Redis command surface.
func NewSearchCache(client CacheCommands) *SearchCache {
	return &SearchCache{client: client, ttl: searchCacheTTL}
}

// Get returns the cached payload or ErrCacheMiss.
func (c *SearchCache) Get(ctx context.Context, query string) ([]byte, error) {
	payload, err := c.client.Get(ctx, searchKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("keyvalue: cache get: %w", err)
	}
	return payload, nil
}

// Put stores the payload under the query hash for the cache lifetime.
func (c *SearchCache) Put(ctx context.Context, query string, payload []byte) error {
	if err := c.client.Set(ctx, searchKey(query), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("keyvalue: cache put: %w", err)
	}
	return nil
}

func searchKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "search:" + hex.EncodeToString(sum[:16])
}
