package models

import "time"

// Session is the server-side record behind a signed credential. The
// TokenID matches the jti claim embedded in the token and is the lookup
// key, which is what makes the otherwise stateless credential revocable.
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenID   string    `db:"token_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	IPAddress *string   `db:"ip_address"`
	UserAgent *string   `db:"user_agent"`
}

// Active reports whether the session has not yet expired.
func (s *Session) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
