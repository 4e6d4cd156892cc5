package ratelimit

import (
	"context"
	"sync"
	"time"
)

// attemptRecord tracks failure timestamps for one key. Created lazily on
// the first failure, pruned on every access, dropped on reset or once it
// carries nothing current.
type attemptRecord struct {
	timestamps   []time.Time
	blockedUntil time.Time
}

// SlidingWindowLimiter is the in-process Limiter. All state is ephemeral;
// a restart resets every key to zero, which is accepted for single-instance
// deployments.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	records map[string]*attemptRecord
	config  Config
	clock   Clock
}

// NewSlidingWindowLimiter creates an in-memory limiter using the system clock.
func NewSlidingWindowLimiter(config Config) *SlidingWindowLimiter {
	return NewSlidingWindowLimiterWithClock(config, SystemClock())
}

// NewSlidingWindowLimiterWithClock creates an in-memory limiter with an
// injected clock for deterministic window testing.
func NewSlidingWindowLimiterWithClock(config Config, clock Clock) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		records: make(map[string]*attemptRecord),
		config:  config,
		clock:   clock,
	}
}

// Check reports whether the key has budget left. It does not consume a
// point. The ctx is unused; the in-memory path cannot block or fail.
func (l *SlidingWindowLimiter) Check(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	rec, ok := l.records[key]
	if !ok {
		return Result{Allowed: true, Remaining: l.config.MaxAttempts, ResetAt: now}, nil
	}

	l.prune(rec, now)

	if now.Before(rec.blockedUntil) {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    rec.blockedUntil,
			RetryAfter: rec.blockedUntil.Sub(now),
		}, nil
	}

	remaining := l.config.MaxAttempts - len(rec.timestamps)
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if len(rec.timestamps) > 0 {
		resetAt = rec.timestamps[0].Add(l.config.Window)
	}

	res := Result{Allowed: remaining > 0, Remaining: remaining, ResetAt: resetAt}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}

// RecordFailure consumes one point for the key. Once the budget is
// exhausted the key is blocked for the configured block duration.
func (l *SlidingWindowLimiter) RecordFailure(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	rec, ok := l.records[key]
	if !ok {
		rec = &attemptRecord{}
		l.records[key] = rec
	}

	l.prune(rec, now)
	rec.timestamps = append(rec.timestamps, now)

	if len(rec.timestamps) >= l.config.MaxAttempts {
		rec.blockedUntil = now.Add(l.config.BlockDuration)
	}
	return nil
}

// Reset clears the key entirely, restoring the full budget.
func (l *SlidingWindowLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
	return nil
}

// Cleanup drops records that carry no current timestamps and no active
// block, bounding memory under sustained attack. Called periodically by
// the background sweeper.
func (l *SlidingWindowLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, rec := range l.records {
		l.prune(rec, now)
		if len(rec.timestamps) == 0 && !now.Before(rec.blockedUntil) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// prune drops timestamps older than the counting window. Caller holds the lock.
func (l *SlidingWindowLimiter) prune(rec *attemptRecord, now time.Time) {
	cutoff := now.Add(-l.config.Window)
	i := 0
	for i < len(rec.timestamps) && !rec.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rec.timestamps = rec.timestamps[i:]
	}
}
