package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication failures. ErrInvalidCredentials deliberately covers
	// both unknown-username and wrong-password so callers cannot leak
	// which one happened.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// ErrStoreUnavailable signals a transient I/O failure talking to the
	// backing store. Lock-state reads that fail map here and abort the
	// attempt (fail closed).
	ErrStoreUnavailable = errors.New("store unavailable")

	// Token verification failures. All map to one generic unauthenticated
	// response at the edge but stay distinguishable for logging.
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

// LimitType identifies which limiter rejected an attempt.
type LimitType string

const (
	LimitTypeNone    LimitType = "none"
	LimitTypeIP      LimitType = "ip"
	LimitTypeAccount LimitType = "account"
)

// RateLimitError carries the retry hint for a rejected attempt.
// It unwraps to ErrRateLimited so callers can dispatch with errors.Is.
type RateLimitError struct {
	LimitType  LimitType
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry after %s", e.LimitType, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
