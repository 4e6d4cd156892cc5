package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmercer-dev/authgate/internal/auth"
	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/services"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
)

// AuthGatewayInterface defines the login/logout orchestration the handler
// delegates to.
type AuthGatewayInterface interface {
	Login(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, token, ip, userAgent string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	gateway  AuthGatewayInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gateway AuthGatewayInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		gateway:  gateway,
		ipConfig: ipConfig,
	}
}

// Request and response DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles a login attempt. Every failure mode collapses into either
// a generic 401 or a 429; the detail lives in the audit log, not the
// response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.gateway.Login(r.Context(), req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		var rateErr *models.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", rateErr.RetryAfter)
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", 0)
		case errors.Is(err, models.ErrInvalidCredentials),
			errors.Is(err, models.ErrAccountLocked):
			// Identical response for bad password, unknown user and locked
			// account, to prevent user enumeration
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

// Logout revokes the presented session. Revoking an already-revoked session
// reports success; the end state is the same.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.gateway.Logout(r.Context(), token, ipAddress, userAgent); err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
			return
		}
		pkghttp.WriteUnauthorized(w, "Invalid or expired credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged out"})
}

// Session returns the caller's session details. Requires the auth
// middleware, which places the resolved session in the request context.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	session := auth.SessionFromContext(r)
	if claims == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SessionResponse{
		UserID:    session.UserID,
		Username:  claims.Username,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
}
