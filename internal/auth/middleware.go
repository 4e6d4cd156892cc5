package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmercer-dev/authgate/internal/models"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing session claims in context
	ClaimsContextKey contextKey = "claims"
	// SessionContextKey is the key for storing the session record in context
	SessionContextKey contextKey = "session"
)

// SessionAuthenticator resolves a presented credential to its live session.
// A valid signature whose session record is gone means the session was
// revoked and must be rejected.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token, ip, userAgent string) (*models.Session, *models.SessionClaims, error)
}

// AuthMiddleware validates bearer credentials against the session store and
// injects the claims and session record into the request context.
func AuthMiddleware(authenticator SessionAuthenticator, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			ip := pkghttp.ExtractClientIP(r, ipConfig)
			userAgent := r.Header.Get("User-Agent")

			session, claims, err := authenticator.Authenticate(r.Context(), token, ip, userAgent)
			if err != nil {
				if errors.Is(err, models.ErrStoreUnavailable) {
					// Cannot verify revocation status, so deny
					pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Unable to verify credentials")
					return
				}
				pkghttp.WriteUnauthorized(w, "Invalid or expired credentials")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates a middleware that enforces role-based access control.
// The role is read from the account row, not the token, so a demotion takes
// effect without waiting for the session to expire.
func RequireRole(accounts AccountReader, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			account, err := accounts.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Authentication required")
					return
				}
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			if account.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ClaimsFromContext extracts session claims from request context
func ClaimsFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(ClaimsContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// SessionFromContext extracts the session record from request context
func SessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// AccountReader is the account lookup the role check needs.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}
