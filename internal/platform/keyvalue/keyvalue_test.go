package keyvalue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeCommands backs all store tests with an in-process map. TTLs are
// recorded but never enforced.
type fakeCommands struct {
	values  map[string]string
	expires map[string]time.Duration
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{values: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if raw, ok := value.([]byte); ok {
		f.values[key] = string(raw)
	} else {
		f.values[key] = fmt.Sprint(value)
	}
	f.expires[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	var current int64
	fmt.Sscan(f.values[key], &current)
	current++
	f.values[key] = fmt.Sprint(current)
	return redis.NewIntResult(current, nil)
}

func (f *fakeCommands) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestOTPStoreConsumeIsSingleUse(t *testing.T) {
	commands := newFakeCommands()
	store := NewOTPStore(commands)
	ctx := context.Background()

	if err := store.Put(ctx, "+919876543210", "123456"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Consume(ctx, "+919876543210", "654321"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := store.Consume(ctx, "+919876543210", "123456"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	// A second consume of the same code maps to expired, not mismatch.
	if err := store.Consume(ctx, "+919876543210", "123456"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected expired on reuse, got %v", err)
	}
}

func TestOTPStoreUnknownPhoneIsNotFound(t *testing.T) {
	// No code was ever issued: distinct from a consumed one.
	store := NewOTPStore(newFakeCommands())
	if err := store.Consume(context.Background(), "+919999999999", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLockerMutualExclusionAndHolderScopedRelease(t *testing.T) {
	commands := newFakeCommands()
	locker := NewLocker(commands)
	ctx := context.Background()
	name := InventoryLockName("phc-1", "med-1")

	if err := locker.Acquire(ctx, name, "ord-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := locker.Acquire(ctx, name, "ord-2"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// A non-holder release is a no-op; the lock stays held.
	if err := locker.Release(ctx, name, "ord-2"); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if err := locker.Acquire(ctx, name, "ord-2"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected lock still held, got %v", err)
	}

	if err := locker.Release(ctx, name, "ord-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := locker.Acquire(ctx, name, "ord-2"); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}

func TestRefreshTokenStoreRotation(t *testing.T) {
	commands := newFakeCommands()
	store := NewRefreshTokenStore(commands)
	ctx := context.Background()

	if err := store.Insert(ctx, "jti-1", "usr-1", time.Hour); err != nil {
		t.Fatalf("insert: %v", err)
	}
	userID, err := store.Verify(ctx, "jti-1")
	if err != nil || userID != "usr-1" {
		t.Fatalf("verify: %v (user %q)", err, userID)
	}

	if err := store.Rotate(ctx, "jti-1", "jti-2", "usr-1", time.Hour); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := store.Verify(ctx, "jti-1"); !errors.Is(err, ErrTokenNotLive) {
		t.Fatalf("expected old token dead, got %v", err)
	}
	if _, err := store.Verify(ctx, "jti-2"); err != nil {
		t.Fatalf("expected new token live, got %v", err)
	}

	if err := store.Revoke(ctx, "jti-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.Verify(ctx, "jti-2"); !errors.Is(err, ErrTokenNotLive) {
		t.Fatalf("expected revoked token dead, got %v", err)
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	commands := newFakeCommands()
	limiter := NewRateLimiter(commands)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1", "login", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1", "login", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("expected fourth request over the limit")
	}

	// Other subjects keep their own window.
	if ok, _ := limiter.Allow(ctx, "10.0.0.2", "login", 3, time.Minute); !ok {
		t.Fatal("expected distinct subject allowed")
	}
	if commands.expires["rl:10.0.0.1:login"] != time.Minute {
		t.Fatal("expected first hit to arm the window expiry")
	}
}

func TestRateLimiterZeroMaxDisablesLimiting(t *testing.T) {
	limiter := NewRateLimiter(newFakeCommands())
	ok, err := limiter.Allow(context.Background(), "10.0.0.1", "login", 0, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected pass-through, got ok=%v err=%v", ok, err)
	}
}

func TestSearchCacheRoundTrip(t *testing.T) {
	commands := newFakeCommands()
	cache := NewSearchCache(commands)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "paracetamol|1|20"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := cache.Put(ctx, "paracetamol|1|20", []byte(`{"items":[]}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, err := cache.Get(ctx, "paracetamol|1|20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != `{"items":[]}` {
		t.Fatalf("unexpected cached body %q", body)
	}
}
