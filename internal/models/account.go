package models

import (
	"time"
)

type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Name           string
	Role           string // e.g., "staff", "admin"
	Status         string // "active", "suspended", "disabled"
	FailedAttempts int
	LockedUntil    *time.Time // Temporary lock expiration, nil when not locked
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the account is under an active temporary lock.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
