package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmercer-dev/authgate/internal/models"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
	pkglogger "github.com/jmercer-dev/authgate/pkg/logger"
)

// AccountAdmin covers the back-office account state transitions.
type AccountAdmin interface {
	Unlock(ctx context.Context, userID string) (*models.Account, error)
	Suspend(ctx context.Context, userID string) (*models.Account, error)
}

// SessionRevoker revokes every live session for an account.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// SuspicionReader exposes the monitor's current view for the back office.
type SuspicionReader interface {
	IsSuspiciousIP(ip string) bool
	IsSuspiciousUser(username string) bool
}

// AdminHandler handles back-office operations on accounts
type AdminHandler struct {
	accounts AccountAdmin
	sessions SessionRevoker
	monitor  SuspicionReader
	audit    *pkglogger.AuditLogger
	ipConfig *pkghttp.IPConfig
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(accounts AccountAdmin, sessions SessionRevoker, monitor SuspicionReader, audit *pkglogger.AuditLogger, ipConfig *pkghttp.IPConfig) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		sessions: sessions,
		monitor:  monitor,
		audit:    audit,
		ipConfig: ipConfig,
	}
}

// UnlockResponse represents the result of an administrative unlock
type UnlockResponse struct {
	UserID         string     `json:"user_id"`
	Username       string     `json:"username"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until"`
	UserSuspicious bool       `json:"user_suspicious"`
}

// UnlockAccount clears the persistent lockout for an account
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "Account id is required")
		return
	}

	account, err := h.accounts.Unlock(r.Context(), userID)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.audit.LogAccountAction("account_unlocked", account.ID, pkghttp.ExtractClientIP(r, h.ipConfig), map[string]string{
		"username": pkglogger.SanitizedUsername(account.Username),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(UnlockResponse{
		UserID:         account.ID,
		Username:       account.Username,
		FailedAttempts: account.FailedAttempts,
		LockedUntil:    account.LockedUntil,
		UserSuspicious: h.monitor.IsSuspiciousUser(account.Username),
	})
}

// SuspendResponse represents the result of an administrative suspension
type SuspendResponse struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Status          string `json:"status"`
	SessionsRevoked int64  `json:"sessions_revoked"`
}

// SuspendAccount marks an account suspended and revokes its live sessions,
// so a suspended user cannot keep riding an already-issued credential.
func (h *AdminHandler) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "Account id is required")
		return
	}

	account, err := h.accounts.Suspend(r.Context(), userID)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	revoked, err := h.sessions.RevokeAllForUser(r.Context(), account.ID)
	if err != nil {
		// The status change already landed; surface the session failure so
		// the operator retries rather than assuming the sessions are gone.
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Account suspended but session revocation failed")
		return
	}

	h.audit.LogAccountAction("account_suspended", account.ID, pkghttp.ExtractClientIP(r, h.ipConfig), map[string]string{
		"username":         pkglogger.SanitizedUsername(account.Username),
		"sessions_revoked": strconv.FormatInt(revoked, 10),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SuspendResponse{
		UserID:          account.ID,
		Username:        account.Username,
		Status:          account.Status,
		SessionsRevoked: revoked,
	})
}

func (h *AdminHandler) writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
