package ratelimit

import (
	"context"
	"time"
)

// Clock abstracts time.Now so window and expiry behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Result is the outcome of a limit check for one key.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero unless the key is currently blocked
}

// Config holds the attempt budget for one limiter instance.
// BlockDuration may differ from the counting window: a key that exhausts
// its budget stays blocked for BlockDuration even if the window is shorter.
type Config struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Limiter is a sliding-window failure counter keyed by an arbitrary string.
// Callers compose two independent instances, one keyed by client IP and one
// keyed by account identifier. Check never consumes budget; RecordFailure
// consumes one point; Reset clears the key entirely.
//
// The in-process implementation never returns errors and ignores the
// context; the shared-store implementation surfaces transport failures.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}
