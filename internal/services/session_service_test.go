package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercer-dev/authgate/internal/auth"
	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/services"
)

const signingSecret = "session-test-secret-with-enough-entropy"

func newSessionService(repo services.SessionRepository, clock *fakeClock) *services.SessionService {
	signer := auth.NewTokenManager(signingSecret, "authgate-test", time.Hour)
	return services.NewSessionService(repo, signer, clock, newTestLogger())
}

func TestSessionService_IssueThenAuthenticate(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	clock := newFakeClock()
	svc := newSessionService(repo, clock)
	ctx := context.Background()

	account := activeAccount()
	token, session, err := svc.Issue(ctx, account, "203.0.113.7", "Mozilla/5.0")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "acct-1", session.UserID)
	require.NotNil(t, session.IPAddress)
	assert.Equal(t, "203.0.113.7", *session.IPAddress)

	got, claims, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.TokenID, got.TokenID)
	assert.Equal(t, "acct-1", claims.UserID)
}

func TestSessionService_RevokeThenAuthenticateFails(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	svc := newSessionService(repo, newFakeClock())
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, activeAccount(), "", "")
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, token)
	require.NoError(t, err)

	_, _, err = svc.Authenticate(ctx, token)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))
}

func TestSessionService_RevokeIsIdempotent(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	svc := newSessionService(repo, newFakeClock())
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, activeAccount(), "", "")
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, token)
	require.NoError(t, err)
	_, err = svc.Revoke(ctx, token)
	assert.NoError(t, err)
}

func TestSessionService_ForgedTokenRejected(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	svc := newSessionService(repo, newFakeClock())

	other := auth.NewTokenManager("some-other-secret-also-long-enough!!", "authgate-test", time.Hour)
	forged, _, err := other.Issue("acct-1", "alice", time.Now())
	require.NoError(t, err)

	_, _, err = svc.Authenticate(context.Background(), forged)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))
}

func TestSessionService_ExpirySweepRemovesSession(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	clock := newFakeClock()
	svc := newSessionService(repo, clock)
	ctx := context.Background()

	_, session, err := svc.Issue(ctx, activeAccount(), "", "")
	require.NoError(t, err)

	// Nothing is expired yet
	removed, err := svc.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	clock.Advance(2 * time.Hour)

	removed, err = svc.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The sweep is idempotent
	removed, err = svc.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	_, err = repo.GetByTokenID(ctx, session.TokenID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSessionService_ExpiredSessionRejectedBeforeSweep(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	clock := newFakeClock()
	svc := newSessionService(repo, clock)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, activeAccount(), "", "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, _, err = svc.Authenticate(ctx, token)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTokenExpired) || errors.Is(err, models.ErrTokenInvalid))
}

func TestSessionService_RevokeAllForUser(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	svc := newSessionService(repo, newFakeClock())
	ctx := context.Background()

	account := activeAccount()
	token1, _, err := svc.Issue(ctx, account, "", "")
	require.NoError(t, err)
	_, _, err = svc.Issue(ctx, account, "", "")
	require.NoError(t, err)

	other := activeAccount()
	other.ID = "acct-2"
	other.Username = "bob"
	otherToken, _, err := svc.Issue(ctx, other, "", "")
	require.NoError(t, err)

	revoked, err := svc.RevokeAllForUser(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	_, _, err = svc.Authenticate(ctx, token1)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))

	// Another user's session survives
	_, _, err = svc.Authenticate(ctx, otherToken)
	assert.NoError(t, err)
}

func TestSessionService_SweepRemovesSessionExpiringExactlyNow(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	clock := newFakeClock()
	svc := newSessionService(repo, clock)
	ctx := context.Background()

	_, _, err := svc.Issue(ctx, activeAccount(), "", "")
	require.NoError(t, err)

	// At the exact expiry instant the session is already inactive, so the
	// sweep removes it rather than leaving it for the next tick
	clock.Advance(time.Hour)

	removed, err := svc.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSessionService_CountActive(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	clock := newFakeClock()
	svc := newSessionService(repo, clock)
	ctx := context.Background()

	account := activeAccount()
	_, _, err := svc.Issue(ctx, account, "", "")
	require.NoError(t, err)
	_, _, err = svc.Issue(ctx, account, "", "")
	require.NoError(t, err)

	count, err := svc.CountActive(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	clock.Advance(2 * time.Hour)
	count, err = svc.CountActive(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSessionService_StoreErrorSurfaces(t *testing.T) {
	repo := services.NewInMemorySessionRepository()
	repo.FailWith = errors.New("connection refused")
	svc := newSessionService(repo, newFakeClock())

	_, _, err := svc.Issue(context.Background(), activeAccount(), "", "")
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
}
