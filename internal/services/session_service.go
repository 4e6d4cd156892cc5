package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/ratelimit"
)

// SessionRepository defines the persistence operations for server-side
// session records. DeleteByTokenID is idempotent; DeleteExpired returns
// the number of rows removed and removes zero on an immediate second call.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error)
	DeleteByTokenID(ctx context.Context, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)
}

// TokenSigner is the pluggable signing primitive producing an opaque
// credential with an embedded unique token id.
type TokenSigner interface {
	Issue(userID, username string, now time.Time) (token string, tokenID string, err error)
	Verify(token string) (*models.SessionClaims, error)
	SessionTTL() time.Duration
}

// SessionService manages the lifecycle of server-side session records tied
// to signed credentials: issuance, lookup, revocation and the expiry sweep.
type SessionService struct {
	repo   SessionRepository
	signer TokenSigner
	clock  ratelimit.Clock
	logger *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, signer TokenSigner, clock ratelimit.Clock, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		signer: signer,
		clock:  clock,
		logger: logger,
	}
}

// Issue signs a credential for the account and persists the session record
// keyed by the embedded token id.
func (s *SessionService) Issue(ctx context.Context, account *models.Account, ipAddress, userAgent string) (string, *models.Session, error) {
	now := s.clock.Now()

	token, tokenID, err := s.signer.Issue(account.ID, account.Username, now)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    account.ID,
		TokenID:   tokenID,
		ExpiresAt: now.Add(s.signer.SessionTTL()),
		CreatedAt: now,
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	s.logger.Info("session created",
		slog.String("user_id", account.ID),
		slog.String("session_id", session.ID),
		slog.Time("expires_at", session.ExpiresAt))

	return token, session, nil
}

// Authenticate verifies a presented credential and resolves its live
// session record. A verified signature is not enough on its own: a missing
// record means the session was revoked, and revocation wins.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.Session, *models.SessionClaims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.repo.GetByTokenID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if !session.Active(s.clock.Now()) {
		return nil, nil, models.ErrTokenExpired
	}

	return session, claims, nil
}

// Revoke deletes the session behind the presented credential. Deleting an
// already-deleted session is not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) (*models.SessionClaims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteByTokenID(ctx, claims.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	s.logger.Info("session revoked", slog.String("user_id", claims.UserID))
	return claims, nil
}

// RevokeByTokenID deletes a session record directly, without a credential.
// Used for administrative revocation.
func (s *SessionService) RevokeByTokenID(ctx context.Context, tokenID string) error {
	if err := s.repo.DeleteByTokenID(ctx, tokenID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAllForUser deletes every session record for the user, e.g. when an
// operator suspends the account. Returns the number revoked.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if revoked > 0 {
		s.logger.Info("sessions revoked for user",
			slog.String("user_id", userID),
			slog.Int64("count", revoked))
	}
	return revoked, nil
}

// CountActive returns the number of unexpired sessions for the user, for
// session-count policies.
func (s *SessionService) CountActive(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountActive(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return count, nil
}

// RemoveExpired sweeps expired session records. Safe to call repeatedly
// and concurrently; a second consecutive call removes zero.
func (s *SessionService) RemoveExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", removed))
	}
	return removed, nil
}
