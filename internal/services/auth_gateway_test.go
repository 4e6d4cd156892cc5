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
	"github.com/jmercer-dev/authgate/internal/ratelimit"
	"github.com/jmercer-dev/authgate/internal/services"
)

type gatewayFixture struct {
	gateway *services.AuthGateway
	monitor *services.SecurityMonitor
	hasher  *stubHasher
	account *models.Account
	clock   *fakeClock
}

// newGatewayFixture wires a gateway with in-memory limiters (IP: 5/15min,
// account: 3/30min), one active account "alice" and a real token signer.
func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	clock := newFakeClock()
	logger := newTestLogger()

	ipLimiter := ratelimit.NewSlidingWindowLimiterWithClock(ratelimit.Config{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}, clock)
	accountLimiter := ratelimit.NewSlidingWindowLimiterWithClock(ratelimit.Config{
		MaxAttempts:   3,
		Window:        30 * time.Minute,
		BlockDuration: 30 * time.Minute,
	}, clock)

	account := activeAccount()
	hasher := &stubHasher{}
	lockout := services.NewLockoutService(accountFixture(account), hasher, services.LockoutConfig{
		MaxFailedAttempts: 10,
		LockDuration:      30 * time.Minute,
	}, clock, logger)

	signer := auth.NewTokenManager(signingSecret, "authgate-test", time.Hour)
	sessions := services.NewSessionService(services.NewInMemorySessionRepository(), signer, clock, logger)

	monitor := services.NewSecurityMonitorWithClock(monitorConfig(), clock, logger)

	gateway := services.NewAuthGateway(ipLimiter, accountLimiter, lockout, sessions, monitor, newTestAudit(), clock, logger)

	return &gatewayFixture{
		gateway: gateway,
		monitor: monitor,
		hasher:  hasher,
		account: account,
		clock:   clock,
	}
}

const (
	attackerIP = "203.0.113.7"
	browserUA  = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"
)

func TestAuthGateway_SuccessfulLogin(t *testing.T) {
	fx := newGatewayFixture(t)

	result, err := fx.gateway.Login(context.Background(), "alice", "s3cret-Pass", attackerIP, browserUA)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "acct-1", result.Session.UserID)
	assert.Equal(t, "acct-1", result.Account.ID)
}

func TestAuthGateway_InvalidPasswordIsGeneric(t *testing.T) {
	fx := newGatewayFixture(t)

	_, err := fx.gateway.Login(context.Background(), "alice", "wrong", attackerIP, browserUA)

	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
}

func TestAuthGateway_UnknownUserIndistinguishableFromWrongPassword(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	_, errUnknown := fx.gateway.Login(ctx, "nobody", "whatever", attackerIP, browserUA)
	_, errWrong := fx.gateway.Login(ctx, "alice", "wrong", attackerIP, browserUA)

	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestAuthGateway_AccountLimiterBlocksBeforeIPLimiter(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	// Three failures for alice exhaust the account budget
	for i := 0; i < 3; i++ {
		_, err := fx.gateway.Login(ctx, "alice", "wrong", attackerIP, browserUA)
		assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
		fx.clock.Advance(time.Minute)
	}

	decision, err := fx.gateway.CheckAttempt(ctx, attackerIP, "alice")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.LimitTypeAccount, decision.LimitType)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	// The IP consumed 3 of its 5 points and still allows other accounts
	assert.Equal(t, 2, decision.IPRemaining)

	_, err = fx.gateway.Login(ctx, "alice", "s3cret-Pass", attackerIP, browserUA)
	assert.True(t, errors.Is(err, models.ErrRateLimited))

	// Two more failures against another name exhaust the IP budget too
	for i := 0; i < 2; i++ {
		_, err := fx.gateway.Login(ctx, "nobody", "wrong", attackerIP, browserUA)
		assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
		fx.clock.Advance(time.Minute)
	}

	decision, err = fx.gateway.CheckAttempt(ctx, attackerIP, "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.LimitTypeIP, decision.LimitType)
}

func TestAuthGateway_SuccessResetsOnlyTouchedKeys(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := fx.gateway.Login(ctx, "alice", "wrong", attackerIP, browserUA)
		assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
		fx.clock.Advance(time.Minute)
	}
	_, err := fx.gateway.Login(ctx, "nobody", "wrong", "198.51.100.9", browserUA)
	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))

	result, err := fx.gateway.Login(ctx, "alice", "s3cret-Pass", attackerIP, browserUA)
	require.NoError(t, err)
	assert.NotNil(t, result)

	decision, err := fx.gateway.CheckAttempt(ctx, attackerIP, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, decision.IPRemaining)
	assert.Equal(t, 3, decision.AccountRemaining)

	// The unrelated IP keeps its consumed point
	decision, err = fx.gateway.CheckAttempt(ctx, "198.51.100.9", "")
	require.NoError(t, err)
	assert.Equal(t, 4, decision.IPRemaining)
}

func TestAuthGateway_RateBlockSkipsCredentialCheck(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = fx.gateway.Login(ctx, "alice", "wrong", attackerIP, browserUA)
		fx.clock.Advance(time.Minute)
	}

	verifyCallsBefore := fx.hasher.verifyCalls
	_, err := fx.gateway.Login(ctx, "alice", "s3cret-Pass", attackerIP, browserUA)

	var rateErr *models.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, models.LimitTypeAccount, rateErr.LimitType)
	assert.Equal(t, verifyCallsBefore, fx.hasher.verifyCalls, "blocked attempts must not reach the hash primitive")
}

func TestAuthGateway_LockedAccountSkipsCredentialCheck(t *testing.T) {
	fx := newGatewayFixture(t)
	until := fx.clock.Now().Add(30 * time.Minute)
	fx.account.FailedAttempts = 10
	fx.account.LockedUntil = &until

	_, err := fx.gateway.Login(context.Background(), "alice", "s3cret-Pass", attackerIP, browserUA)

	assert.True(t, errors.Is(err, models.ErrAccountLocked))
	assert.Equal(t, 0, fx.hasher.verifyCalls)
}

func TestAuthGateway_LockExpiryAllowsLoginAgain(t *testing.T) {
	fx := newGatewayFixture(t)
	until := fx.clock.Now().Add(30 * time.Minute)
	fx.account.FailedAttempts = 10
	fx.account.LockedUntil = &until

	fx.clock.Advance(31 * time.Minute)

	result, err := fx.gateway.Login(context.Background(), "alice", "s3cret-Pass", attackerIP, browserUA)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 0, fx.account.FailedAttempts)
}

func TestAuthGateway_LoginLogoutRoundTrip(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	result, err := fx.gateway.Login(ctx, "alice", "s3cret-Pass", attackerIP, browserUA)
	require.NoError(t, err)

	session, claims, err := fx.gateway.Authenticate(ctx, result.Token, attackerIP, browserUA)
	require.NoError(t, err)
	assert.Equal(t, result.Session.TokenID, session.TokenID)
	assert.Equal(t, "alice", claims.Username)

	require.NoError(t, fx.gateway.Logout(ctx, result.Token, attackerIP, browserUA))

	_, _, err = fx.gateway.Authenticate(ctx, result.Token, attackerIP, browserUA)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))
}

func TestAuthGateway_InvalidTokensFeedTheMonitor(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := fx.gateway.Authenticate(ctx, "garbage-token", attackerIP, browserUA)
		assert.Error(t, err)
		fx.clock.Advance(time.Minute)
	}

	assert.True(t, fx.monitor.IsSuspiciousIP(attackerIP))
}

func TestAuthGateway_OnLoginFailureRecordsEverything(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.gateway.OnLoginFailure(ctx, attackerIP, "alice", browserUA, models.ReasonInvalidCredentials))

	assert.Equal(t, 1, fx.account.FailedAttempts)

	decision, err := fx.gateway.CheckAttempt(ctx, attackerIP, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, decision.IPRemaining)
	assert.Equal(t, 2, decision.AccountRemaining)
}

func TestAuthGateway_OnLoginSuccessResetsAndIssuesSession(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.gateway.OnLoginFailure(ctx, attackerIP, "alice", browserUA, models.ReasonInvalidCredentials))

	result, err := fx.gateway.OnLoginSuccess(ctx, attackerIP, "alice", browserUA)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, 0, fx.account.FailedAttempts)

	decision, err := fx.gateway.CheckAttempt(ctx, attackerIP, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, decision.IPRemaining)
	assert.Equal(t, 3, decision.AccountRemaining)
}
