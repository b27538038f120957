// Package lock serializes work on one entity across processes with a Redis
// SET NX lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pricing/internal/resilience"
)

var (
	// ErrNotConfigured is returned when the locker has no Redis client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrNotAcquired is returned when ctx ends before the lock is free.
	ErrNotAcquired = errors.New("lock: not acquired")
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker hands out Redis-backed mutual exclusion per key.
type Locker struct {
	R            *redis.Client
	Prefix       string
	TTL          time.Duration
	RetryBackoff time.Duration
}

// Key returns the Redis key guarding name.
func (l Locker) Key(name string) string {
	if l.Prefix == "" {
		return "lock:" + name
	}
	return l.Prefix + ":lock:" + name
}

// WithLock runs fn while holding the lock for name. The lock expires after
// the TTL if the holder dies; it is released when fn returns.
func (l Locker) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	key := l.Key(name)
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrNotAcquired, name, ctx.Err())
			}
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		wait := min(resilience.Backoff(base, min(attempt, 5), 0.2), time.Second)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, name, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
