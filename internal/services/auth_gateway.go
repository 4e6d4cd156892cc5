package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/ratelimit"
	pkglogger "github.com/jmercer-dev/authgate/pkg/logger"
)

// Decision is the outcome of the combined limiter check for one attempt.
// Values are plain data; mapping them to transport headers is the route
// layer's concern.
type Decision struct {
	Allowed          bool
	LimitType        models.LimitType
	RetryAfter       time.Duration
	ResetAt          time.Time
	IPRemaining      int
	AccountRemaining int
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token   string
	Session *models.Session
	Account *models.Account
}

// AuthGateway orchestrates one login attempt across the limiters, the
// persistent lockout, the session store and the security monitor. It owns
// the two limiter instances (one keyed by client IP, one by account name)
// rather than leaving them as package globals, so tests and deployments
// construct exactly the state they need.
type AuthGateway struct {
	ipLimiter      ratelimit.Limiter
	accountLimiter ratelimit.Limiter
	lockout        *LockoutService
	sessions       *SessionService
	monitor        *SecurityMonitor
	audit          *pkglogger.AuditLogger
	clock          ratelimit.Clock
	logger         *slog.Logger
}

// NewAuthGateway creates a new AuthGateway
func NewAuthGateway(
	ipLimiter ratelimit.Limiter,
	accountLimiter ratelimit.Limiter,
	lockout *LockoutService,
	sessions *SessionService,
	monitor *SecurityMonitor,
	audit *pkglogger.AuditLogger,
	clock ratelimit.Clock,
	logger *slog.Logger,
) *AuthGateway {
	return &AuthGateway{
		ipLimiter:      ipLimiter,
		accountLimiter: accountLimiter,
		lockout:        lockout,
		sessions:       sessions,
		monitor:        monitor,
		audit:          audit,
		clock:          clock,
		logger:         logger,
	}
}

// CheckAttempt evaluates both limiters without consuming budget. The
// attempt is allowed only if the IP limiter allows it and, when an account
// key is known, the account limiter does too. Limiter store errors abort
// the attempt (fail closed).
func (g *AuthGateway) CheckAttempt(ctx context.Context, ip, username string) (Decision, error) {
	ipRes, err := g.ipLimiter.Check(ctx, ip)
	if err != nil {
		return Decision{}, fmt.Errorf("ip limiter check: %w", err)
	}

	decision := Decision{
		Allowed:     ipRes.Allowed,
		LimitType:   models.LimitTypeNone,
		IPRemaining: ipRes.Remaining,
		ResetAt:     ipRes.ResetAt,
	}
	if !ipRes.Allowed {
		decision.LimitType = models.LimitTypeIP
		decision.RetryAfter = ipRes.RetryAfter
	}

	if username != "" {
		acctRes, err := g.accountLimiter.Check(ctx, username)
		if err != nil {
			return Decision{}, fmt.Errorf("account limiter check: %w", err)
		}
		decision.AccountRemaining = acctRes.Remaining

		if !acctRes.Allowed && decision.Allowed {
			decision.Allowed = false
			decision.LimitType = models.LimitTypeAccount
			decision.RetryAfter = acctRes.RetryAfter
			decision.ResetAt = acctRes.ResetAt
		}
	}

	return decision, nil
}

// OnLoginFailure records a failed attempt from outside the Login flow:
// both limiters take a failure, the persistent lockout counter is bumped
// when the account resolves, and a classified event is emitted.
func (g *AuthGateway) OnLoginFailure(ctx context.Context, ip, username, userAgent, reason string) error {
	if err := g.recordLimiterFailures(ctx, ip, username); err != nil {
		return err
	}

	ev := g.newEvent(models.EventLoginFailure, ip, userAgent)
	ev.Username = username
	ev.Reason = reason

	if username != "" {
		account, err := g.lockout.repo.GetByUsername(ctx, username)
		if err == nil {
			ev.UserID = account.ID
			if err := g.lockout.IncrementFailedAttempts(ctx, account); err != nil {
				g.logger.Error("failed to bump lockout counter",
					slog.String("user_id", account.ID),
					slog.Any("error", err))
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}

	g.emit(ev)
	return nil
}

// OnLoginSuccess resets both limiter keys and the persistent counters,
// creates a session for the account, and emits a success event.
func (g *AuthGateway) OnLoginSuccess(ctx context.Context, ip, username, userAgent string) (*LoginResult, error) {
	account, err := g.lockout.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if err := g.lockout.ResetFailedAttempts(ctx, account.ID); err != nil {
		g.logger.Error("failed to reset lockout counter",
			slog.String("user_id", account.ID),
			slog.Any("error", err))
	}
	if err := g.resetLimiters(ctx, ip, username); err != nil {
		g.logger.Error("failed to reset limiters after successful login", slog.Any("error", err))
	}

	return g.finishSuccess(ctx, account, ip, userAgent)
}

// Login runs the full state machine for one attempt: rate check, lock and
// credential check, then either failure bookkeeping or session issuance.
func (g *AuthGateway) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	attempt := g.newEvent(models.EventLoginAttempt, ip, userAgent)
	attempt.Username = username
	g.emit(attempt)

	decision, err := g.CheckAttempt(ctx, ip, username)
	if err != nil {
		g.emitFailure(ip, username, userAgent, "", models.ReasonStoreUnavailable, models.LimitTypeNone)
		return nil, err
	}
	if !decision.Allowed {
		g.emitFailure(ip, username, userAgent, "", models.ReasonRateLimited, decision.LimitType)
		return nil, &models.RateLimitError{LimitType: decision.LimitType, RetryAfter: decision.RetryAfter}
	}

	account, err := g.lockout.VerifyCredentials(ctx, username, password)
	if err != nil {
		userID := ""
		if account != nil {
			userID = account.ID
		}

		switch {
		case errors.Is(err, models.ErrAccountLocked):
			// Terminal: the lock already caps this account, so the
			// limiters keep their budget for the unlock window.
			g.emitFailure(ip, username, userAgent, userID, models.ReasonAccountLocked, models.LimitTypeNone)
			return nil, models.ErrAccountLocked

		case errors.Is(err, models.ErrStoreUnavailable):
			g.emitFailure(ip, username, userAgent, userID, models.ReasonStoreUnavailable, models.LimitTypeNone)
			return nil, err

		case errors.Is(err, models.ErrAccountDisabled), errors.Is(err, models.ErrAccountSuspended):
			if lerr := g.recordLimiterFailures(ctx, ip, username); lerr != nil {
				g.logger.Error("failed to record limiter failure", slog.Any("error", lerr))
			}
			g.emitFailure(ip, username, userAgent, userID, models.ReasonAccountDisabled, models.LimitTypeNone)
			// Outward identical to a bad password; account state is
			// nobody's business at the login prompt.
			return nil, models.ErrInvalidCredentials

		default:
			if lerr := g.recordLimiterFailures(ctx, ip, username); lerr != nil {
				g.logger.Error("failed to record limiter failure", slog.Any("error", lerr))
			}
			ev := g.newEvent(models.EventLoginFailure, ip, userAgent)
			ev.Username = username
			ev.UserID = userID
			ev.Reason = models.ReasonInvalidCredentials
			if account != nil {
				ev.Metadata = map[string]string{
					"advisory_delay": ratelimit.Delay(account.FailedAttempts).Round(time.Millisecond).String(),
				}
			}
			g.emit(ev)
			return nil, models.ErrInvalidCredentials
		}
	}

	if err := g.resetLimiters(ctx, ip, username); err != nil {
		g.logger.Error("failed to reset limiters after successful login", slog.Any("error", err))
	}

	return g.finishSuccess(ctx, account, ip, userAgent)
}

// Authenticate resolves a presented credential to its live session. Token
// failures feed the per-IP invalid-token window before surfacing.
func (g *AuthGateway) Authenticate(ctx context.Context, token, ip, userAgent string) (*models.Session, *models.SessionClaims, error) {
	session, claims, err := g.sessions.Authenticate(ctx, token)
	if err != nil {
		g.noteTokenFailure(ip, userAgent, err)
		return nil, nil, err
	}
	return session, claims, nil
}

// Logout revokes the session behind the presented credential and emits a
// logout event. Revoking an already-revoked session succeeds.
func (g *AuthGateway) Logout(ctx context.Context, token, ip, userAgent string) error {
	claims, err := g.sessions.Revoke(ctx, token)
	if err != nil {
		g.noteTokenFailure(ip, userAgent, err)
		return err
	}

	ev := g.newEvent(models.EventLogout, ip, userAgent)
	ev.UserID = claims.UserID
	ev.Username = claims.Username
	g.emit(ev)
	return nil
}

// Shutdown is a hook for symmetry with the background sweeper; the gateway
// itself holds no goroutines.
func (g *AuthGateway) Shutdown() {}

func (g *AuthGateway) finishSuccess(ctx context.Context, account *models.Account, ip, userAgent string) (*LoginResult, error) {
	token, session, err := g.sessions.Issue(ctx, account, ip, userAgent)
	if err != nil {
		g.emitFailure(ip, account.Username, userAgent, account.ID, models.ReasonStoreUnavailable, models.LimitTypeNone)
		return nil, err
	}

	ev := g.newEvent(models.EventLoginSuccess, ip, userAgent)
	ev.UserID = account.ID
	ev.Username = account.Username
	g.emit(ev)

	return &LoginResult{Token: token, Session: session, Account: account}, nil
}

// recordLimiterFailures consumes one point on the IP limiter and, when the
// account key is known, one on the account limiter.
func (g *AuthGateway) recordLimiterFailures(ctx context.Context, ip, username string) error {
	if err := g.ipLimiter.RecordFailure(ctx, ip); err != nil {
		return err
	}
	if username != "" {
		if err := g.accountLimiter.RecordFailure(ctx, username); err != nil {
			return err
		}
	}
	return nil
}

func (g *AuthGateway) resetLimiters(ctx context.Context, ip, username string) error {
	if err := g.ipLimiter.Reset(ctx, ip); err != nil {
		return err
	}
	return g.accountLimiter.Reset(ctx, username)
}

func (g *AuthGateway) noteTokenFailure(ip, userAgent string, cause error) {
	ev := g.newEvent(models.EventTokenInvalid, ip, userAgent)
	switch {
	case errors.Is(cause, models.ErrTokenExpired):
		ev.Reason = "token_expired"
	case errors.Is(cause, models.ErrTokenMalformed):
		ev.Reason = "token_malformed"
	default:
		ev.Reason = "token_invalid"
	}
	g.emit(ev)
}

func (g *AuthGateway) newEvent(eventType models.SecurityEventType, ip, userAgent string) *models.SecurityEvent {
	ev := models.NewSecurityEvent(eventType, g.clock.Now())
	ev.IPAddress = ip
	ev.UserAgent = userAgent
	return ev
}

func (g *AuthGateway) emitFailure(ip, username, userAgent, userID, reason string, limitType models.LimitType) {
	ev := g.newEvent(models.EventLoginFailure, ip, userAgent)
	ev.Username = username
	ev.UserID = userID
	ev.Reason = reason
	ev.LimitType = limitType
	g.emit(ev)
}

// emit finalizes the severity, feeds the correlator and writes the audit
// line with any findings.
func (g *AuthGateway) emit(ev *models.SecurityEvent) {
	ev.Reclassify()
	findings := g.monitor.Record(ev)
	g.audit.LogSecurityEvent(ev, findings)
}
