package keyvalue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockTTL = 30 * time.Second

// ErrLockHeld indicates another worker holds the lock.
var ErrLockHeld = errors.New("keyvalue: lock held")

// LockCommands is the subset of Redis commands the locker needs.
type LockCommands interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Locker provides short-lived mutual exclusion keyed on arbitrary resources.
// The TTL bounds how long a crashed holder can block others; correctness of
// the guarded operation never depends on the lock alone.
type Locker struct {
	client LockCommands
	ttl    time.Duration
}

// NewLocker wires the locker over a Redis command surface.
func NewLocker(client LockCommands) *Locker {
	return &Locker{client: client, ttl: lockTTL}
}

// Acquire takes the named lock, stamping it with the holder token. Returns
// ErrLockHeld when another holder owns it.
func (l *Locker) Acquire(ctx context.Context, name, holder string) error {
	ok, err := l.client.SetNX(ctx, lockKey(name), holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("keyvalue: acquire lock %q: %w", name, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release frees the named lock if the holder still owns it. Releasing a lock
// that expired or was re-acquired by someone else is a no-op.
func (l *Locker) Release(ctx context.Context, name, holder string) error {
	key := lockKey(name)
	current, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyvalue: inspect lock %q: %w", name, err)
	}
	if current != holder {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("keyvalue: release lock %q: %w", name, err)
	}
	return nil
}

// InventoryLockName builds the canonical lock name for a stock cell.
func InventoryLockName(pharmacyID, medicineID string) string {
	return "inventory_lock:" + pharmacyID + "_" + medicineID
}

func lockKey(name string) string {
	return name
}
