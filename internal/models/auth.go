package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims embedded in a signed session credential.
// The registered ID claim (jti) doubles as the server-side session lookup
// key.
type SessionClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
