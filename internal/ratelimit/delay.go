package ratelimit

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

const (
	backoffBase   = 1 * time.Second
	backoffCap    = 300 * time.Second
	backoffJitter = 0.25
)

// Delay returns the advisory pacing delay for the n-th failed attempt:
// exponential from 1s, capped at 300s, with ±25% jitter. The jitter blunts
// thundering-herd retries and keeps the exact delay from acting as a
// timing oracle for account enumeration. Callers may use it to pace a
// response; the limiters do not enforce it.
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := backoffCap
	// 2^(n-1) seconds, guarding the shift against overflow past the cap.
	if attempt-1 < 63 {
		d := backoffBase << uint(attempt-1)
		if d < backoffCap && d > 0 {
			base = d
		}
	}

	// Jitter in [-0.25, +0.25), sourced from crypto/rand like the rest of
	// the security-sensitive randomness here.
	spread := (randFloat() * 2 * backoffJitter) - backoffJitter
	jittered := time.Duration(float64(base) * (1 + spread))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// randFloat returns a uniform value in [0, 1).
func randFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits of mantissa
	v := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(v) / float64(1<<53)
}
