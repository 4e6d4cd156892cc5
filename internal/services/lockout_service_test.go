package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/services"
)

// accountFixture wires a MockAccountRepository around one mutable account
// so failure-state writes are visible to subsequent reads.
func accountFixture(account *models.Account) *services.MockAccountRepository {
	return &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			if account != nil && account.Username == username {
				copied := *account
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			if account != nil && account.ID == id {
				copied := *account
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateFailureStateFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			account.FailedAttempts = failedAttempts
			account.LockedUntil = lockedUntil
			return nil
		},
		ResetFailureStateFunc: func(ctx context.Context, id string) error {
			account.FailedAttempts = 0
			account.LockedUntil = nil
			return nil
		},
	}
}

func activeAccount() *models.Account {
	return &models.Account{
		ID:           "acct-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hashed:s3cret-Pass",
		Status:       "active",
	}
}

func newLockoutService(repo services.AccountRepository, hasher services.PasswordHasher, clock *fakeClock) *services.LockoutService {
	return services.NewLockoutService(repo, hasher, services.LockoutConfig{
		MaxFailedAttempts: 5,
		LockDuration:      30 * time.Minute,
	}, clock, newTestLogger())
}

func TestLockoutService_VerifyCredentials_Success(t *testing.T) {
	account := activeAccount()
	svc := newLockoutService(accountFixture(account), &stubHasher{}, newFakeClock())

	got, err := svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")

	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)
}

func TestLockoutService_VerifyCredentials_WrongPasswordIncrementsCounter(t *testing.T) {
	account := activeAccount()
	svc := newLockoutService(accountFixture(account), &stubHasher{}, newFakeClock())

	_, err := svc.VerifyCredentials(context.Background(), "alice", "wrong")

	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
	assert.Equal(t, 1, account.FailedAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestLockoutService_VerifyCredentials_LocksAtMaxAttempts(t *testing.T) {
	account := activeAccount()
	clock := newFakeClock()
	svc := newLockoutService(accountFixture(account), &stubHasher{}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.VerifyCredentials(ctx, "alice", "wrong")
		assert.Error(t, err)
	}

	require.NotNil(t, account.LockedUntil)
	assert.True(t, account.LockedUntil.After(clock.Now()))
	assert.Equal(t, 5, account.FailedAttempts)
}

func TestLockoutService_VerifyCredentials_LockedRejectsCorrectPasswordWithoutHashing(t *testing.T) {
	account := activeAccount()
	clock := newFakeClock()
	until := clock.Now().Add(30 * time.Minute)
	account.FailedAttempts = 5
	account.LockedUntil = &until

	hasher := &stubHasher{}
	svc := newLockoutService(accountFixture(account), hasher, clock)

	_, err := svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")

	assert.True(t, errors.Is(err, models.ErrAccountLocked))
	assert.Equal(t, 0, hasher.verifyCalls, "password primitive must not run against a locked account")
}

func TestLockoutService_VerifyCredentials_LockExpiryAllowsLoginAndResets(t *testing.T) {
	account := activeAccount()
	clock := newFakeClock()
	until := clock.Now().Add(30 * time.Minute)
	account.FailedAttempts = 5
	account.LockedUntil = &until

	svc := newLockoutService(accountFixture(account), &stubHasher{}, clock)

	clock.Advance(31 * time.Minute)
	got, err := svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")

	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedAttempts)
	assert.Equal(t, 0, account.FailedAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestLockoutService_VerifyCredentials_UnknownUserGenericError(t *testing.T) {
	svc := newLockoutService(&services.MockAccountRepository{}, &stubHasher{}, newFakeClock())

	_, err := svc.VerifyCredentials(context.Background(), "nobody", "whatever")

	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
}

func TestLockoutService_VerifyCredentials_StoreErrorFailsClosed(t *testing.T) {
	repo := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			return nil, errors.New("connection refused")
		},
	}
	hasher := &stubHasher{}
	svc := newLockoutService(repo, hasher, newFakeClock())

	_, err := svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")

	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
	assert.Equal(t, 0, hasher.verifyCalls)
}

func TestLockoutService_VerifyCredentials_DisabledAccount(t *testing.T) {
	account := activeAccount()
	account.Status = "disabled"
	svc := newLockoutService(accountFixture(account), &stubHasher{}, newFakeClock())

	_, err := svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")

	assert.True(t, errors.Is(err, models.ErrAccountDisabled))
}

func TestLockoutService_Unlock(t *testing.T) {
	account := activeAccount()
	clock := newFakeClock()
	until := clock.Now().Add(30 * time.Minute)
	account.FailedAttempts = 5
	account.LockedUntil = &until

	svc := newLockoutService(accountFixture(account), &stubHasher{}, clock)

	got, err := svc.Unlock(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestLockoutService_Unlock_UnknownAccount(t *testing.T) {
	svc := newLockoutService(&services.MockAccountRepository{}, &stubHasher{}, newFakeClock())

	_, err := svc.Unlock(context.Background(), "missing")

	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLockoutService_Suspend(t *testing.T) {
	account := activeAccount()
	repo := accountFixture(account)
	repo.UpdateStatusFunc = func(ctx context.Context, id, status string) error {
		account.Status = status
		return nil
	}
	svc := newLockoutService(repo, &stubHasher{}, newFakeClock())

	got, err := svc.Suspend(context.Background(), "acct-1")

	require.NoError(t, err)
	assert.Equal(t, "suspended", got.Status)
	assert.Equal(t, "suspended", account.Status)

	// A suspended account no longer passes credential checks
	_, err = svc.VerifyCredentials(context.Background(), "alice", "s3cret-Pass")
	assert.True(t, errors.Is(err, models.ErrAccountSuspended))
}

func TestLockoutService_Suspend_UnknownAccount(t *testing.T) {
	svc := newLockoutService(&services.MockAccountRepository{}, &stubHasher{}, newFakeClock())

	_, err := svc.Suspend(context.Background(), "missing")

	assert.True(t, errors.Is(err, models.ErrNotFound))
}
