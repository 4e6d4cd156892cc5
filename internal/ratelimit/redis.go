package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmercer-dev/authgate/internal/models"
)

// RedisLimiter is the shared-store Limiter for horizontally scaled
// deployments: a per-key counter with a TTL instead of an in-process
// timestamp window. Counting is coarser than the sliding window (the
// whole budget resets when the key expires) but survives restarts and is
// shared across instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	config Config
}

// NewRedisLimiter creates a limiter backed by the given redis client.
// The prefix keeps independent limiter instances (IP vs account) from
// colliding in the same keyspace.
func NewRedisLimiter(client *redis.Client, prefix string, config Config) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, config: config}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":" + key
}

// Check reads the current counter without consuming budget.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Allowed: true, Remaining: l.config.MaxAttempts}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	ttl, err := l.client.PTTL(ctx, l.key(key)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		ttl = 0
	}

	remaining := l.config.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   count < l.config.MaxAttempts,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// RecordFailure increments the counter, arming the window TTL on the first
// failure and stretching it to the block duration once the budget is gone.
//
// The increment and the TTL arm run in one MULTI/EXEC so a counter can
// never land in redis without an expiry; EXPIRE NX leaves an already-armed
// window untouched.
func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, l.key(key))
	pipe.ExpireNX(ctx, l.key(key), l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if incr.Val() >= int64(l.config.MaxAttempts) {
		if err := l.client.Expire(ctx, l.key(key), l.config.BlockDuration).Err(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Reset clears the key, restoring the full budget.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}
