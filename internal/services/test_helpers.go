package services

import (
	"context"
	"sync"
	"time"

	"github.com/jmercer-dev/authgate/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByUsernameFunc      func(ctx context.Context, username string) (*models.Account, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.Account, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.Account, error)
	UpdateFailureStateFunc func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	ResetFailureStateFunc  func(ctx context.Context, id string) error
	UpdateStatusFunc       func(ctx context.Context, id, status string) error
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	if m.UpdateFailureStateFunc != nil {
		return m.UpdateFailureStateFunc(ctx, id, failedAttempts, lockedUntil)
	}
	return nil
}

func (m *MockAccountRepository) ResetFailureState(ctx context.Context, id string) error {
	if m.ResetFailureStateFunc != nil {
		return m.ResetFailureStateFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) UpdateStatus(ctx context.Context, id, status string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

// InMemorySessionRepository implements SessionRepository against a map,
// for tests that need real create/find/delete semantics.
type InMemorySessionRepository struct {
	mu       sync.Mutex
	byToken  map[string]*models.Session
	FailWith error // when set, every operation returns this error
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{byToken: make(map[string]*models.Session)}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, session *models.Session) error {
	if r.FailWith != nil {
		return r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byToken[session.TokenID]; exists {
		return models.ErrConflict
	}
	copied := *session
	r.byToken[session.TokenID] = &copied
	return nil
}

func (r *InMemorySessionRepository) GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error) {
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byToken[tokenID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *InMemorySessionRepository) DeleteByTokenID(ctx context.Context, tokenID string) error {
	if r.FailWith != nil {
		return r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, tokenID)
	return nil
}

func (r *InMemorySessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for tokenID, session := range r.byToken {
		if session.UserID == userID {
			delete(r.byToken, tokenID)
			removed++
		}
	}
	return removed, nil
}

// DeleteExpired mirrors the postgres repository's boundary: a session whose
// expiry equals now is already inactive, so it is removed.
func (r *InMemorySessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for tokenID, session := range r.byToken {
		if !session.ExpiresAt.After(now) {
			delete(r.byToken, tokenID)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemorySessionRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, session := range r.byToken {
		if session.UserID == userID && session.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}
