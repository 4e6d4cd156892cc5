package models

import (
	"time"

	"github.com/google/uuid"
)

// SecurityEventType classifies authentication activity.
type SecurityEventType string

const (
	EventLoginAttempt SecurityEventType = "login_attempt"
	EventLoginSuccess SecurityEventType = "login_success"
	EventLoginFailure SecurityEventType = "login_failure"
	EventLogout       SecurityEventType = "logout"
	EventTokenInvalid SecurityEventType = "token_invalid"
)

// Severity is derived from the event type and context, never set by callers.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Failure reason codes attached to login_failure events.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountLocked      = "account_locked"
	ReasonAccountDisabled    = "account_disabled"
	ReasonRateLimited        = "rate_limited"
	ReasonStoreUnavailable   = "store_unavailable"
)

// SecurityEvent is one classified observation of authentication activity.
// Typed fields replace a free-form details bag; Metadata remains for
// anything that has no dedicated field yet.
type SecurityEvent struct {
	ID        string
	Type      SecurityEventType
	Severity  Severity
	UserID    string // empty when the account did not resolve
	Username  string
	IPAddress string
	UserAgent string
	Reason    string // reason code for failures, empty otherwise
	LimitType LimitType
	Timestamp time.Time
	Metadata  map[string]string
}

// NewSecurityEvent stamps an id and derives the severity.
func NewSecurityEvent(eventType SecurityEventType, now time.Time) *SecurityEvent {
	ev := &SecurityEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: now,
	}
	ev.Severity = ev.deriveSeverity()
	return ev
}

// deriveSeverity maps the event type and failure reason onto a severity.
// A failure against a locked account is the strongest signal we classify:
// the attacker already burned the attempt budget.
func (e *SecurityEvent) deriveSeverity() Severity {
	switch e.Type {
	case EventLoginFailure:
		if e.Reason == ReasonAccountLocked {
			return SeverityHigh
		}
		return SeverityMedium
	case EventTokenInvalid:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Reclassify recomputes the severity after typed fields were filled in.
func (e *SecurityEvent) Reclassify() {
	e.Severity = e.deriveSeverity()
}
