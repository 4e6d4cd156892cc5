package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/ratelimit"
)

// AccountRepository defines the account persistence operations the lockout
// manager needs. Implementations must distinguish "not found"
// (models.ErrNotFound) from transport failures.
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	ResetFailureState(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// PasswordHasher is the pluggable one-way hash primitive. Verify reports
// false for a malformed hash rather than erroring.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// LockoutConfig holds the persistent lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

// LockoutService persists failure counters and lock expiries on the
// account row, so a lock survives process restarts. It is deliberately a
// second, independent layer behind the in-memory account limiter.
type LockoutService struct {
	repo   AccountRepository
	hasher PasswordHasher
	config LockoutConfig
	clock  ratelimit.Clock
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo AccountRepository, hasher PasswordHasher, config LockoutConfig, clock ratelimit.Clock, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		hasher: hasher,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// VerifyCredentials authenticates a username/password pair against the
// persistent account record.
//
// Ordering matters here: the lock check runs before any hash work, both to
// skip the bcrypt cost for locked accounts and so a locked account is not
// distinguishable from a wrong password by response timing. A failed read
// of lock state aborts the attempt rather than assuming "not locked".
//
// On failures other than "unknown username" the loaded account is returned
// alongside the error so the caller can attribute the security event; it
// must not be treated as authenticated.
func (s *LockoutService) VerifyCredentials(ctx context.Context, username, password string) (*models.Account, error) {
	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load account for credential check", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	switch account.Status {
	case "disabled":
		return account, models.ErrAccountDisabled
	case "suspended":
		return account, models.ErrAccountSuspended
	}

	if account.Locked(s.clock.Now()) {
		return account, models.ErrAccountLocked
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if err := s.IncrementFailedAttempts(ctx, account); err != nil {
			s.logger.Error("failed to record failed attempt",
				slog.String("user_id", account.ID),
				slog.Any("error", err))
		}
		return account, models.ErrInvalidCredentials
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.ResetFailedAttempts(ctx, account.ID); err != nil {
			s.logger.Error("failed to reset failure state after successful login",
				slog.String("user_id", account.ID),
				slog.Any("error", err))
		} else {
			account.FailedAttempts = 0
			account.LockedUntil = nil
		}
	}

	return account, nil
}

// IncrementFailedAttempts bumps the persistent failure counter and sets
// the lock expiry once the counter reaches the configured maximum.
//
// This is a read-modify-write against the row the caller already loaded;
// concurrent failures on the same account can under-count by one in the
// worst case. Best-effort is acceptable for this counter.
func (s *LockoutService) IncrementFailedAttempts(ctx context.Context, account *models.Account) error {
	newCount := account.FailedAttempts + 1

	var lockedUntil *time.Time
	if newCount >= s.config.MaxFailedAttempts {
		until := s.clock.Now().Add(s.config.LockDuration)
		lockedUntil = &until

		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", account.ID),
			slog.Int("failed_attempts", newCount),
			slog.Time("locked_until", until))
	}

	if err := s.repo.UpdateFailureState(ctx, account.ID, newCount, lockedUntil); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	account.FailedAttempts = newCount
	account.LockedUntil = lockedUntil
	return nil
}

// ResetFailedAttempts clears the counter and the lock together.
func (s *LockoutService) ResetFailedAttempts(ctx context.Context, userID string) error {
	if err := s.repo.ResetFailureState(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Unlock clears a lock administratively, e.g. from the back-office unlock
// endpoint. Same effect as ResetFailedAttempts but reads the account first
// so callers get ErrNotFound for bad ids.
func (s *LockoutService) Unlock(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if err := s.ResetFailedAttempts(ctx, account.ID); err != nil {
		return nil, err
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return account, nil
}

// Suspend marks the account suspended. A suspended account fails credential
// checks until an operator re-activates it; the caller is responsible for
// revoking any live sessions alongside.
func (s *LockoutService) Suspend(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if err := s.repo.UpdateStatus(ctx, account.ID, "suspended"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	account.Status = "suspended"

	s.logger.Warn("account suspended", slog.String("user_id", account.ID))
	return account, nil
}
