package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmercer-dev/authgate/internal/models"
)

// TokenManager signs and verifies the opaque session credential. Every
// issued token carries a unique jti; the server-side session record keyed
// by that jti is what makes the credential revocable.
type TokenManager struct {
	secret     string
	issuer     string
	sessionTTL time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret, issuer string, sessionTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     secret,
		issuer:     issuer,
		sessionTTL: sessionTTL,
	}
}

// SessionTTL returns the configured credential lifetime.
func (tm *TokenManager) SessionTTL() time.Duration {
	return tm.sessionTTL
}

// Issue creates a signed session credential and returns it together with
// the embedded token id.
func (tm *TokenManager) Issue(userID, username string, now time.Time) (string, string, error) {
	jti := uuid.New().String()

	claims := &models.SessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tm.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, jti, nil
}

// Verify checks the signature and registered claims. Failures stay
// distinguishable (malformed vs expired vs bad signature) for logging,
// though the edge collapses them into one unauthenticated response.
func (tm *TokenManager) Verify(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", models.ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", models.ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
		default:
			return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
		}
	}

	if !token.Valid || claims.ID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
