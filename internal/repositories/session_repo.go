package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmercer-dev/authgate/internal/database"
	"github.com/jmercer-dev/authgate/internal/models"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session
	var ipAddress, userAgent *string

	err := scanner.Scan(
		&session.ID, &session.UserID, &session.TokenID,
		&session.ExpiresAt, &session.CreatedAt,
		&ipAddress, &userAgent,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	session.IPAddress = ipAddress
	session.UserAgent = userAgent
	return &session, nil
}

const sessionColumns = `id, user_id, token_id, expires_at, created_at, ip_address, user_agent`

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_id, expires_at, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.TokenID,
		session.ExpiresAt, session.CreatedAt,
		session.IPAddress, session.UserAgent,
	)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_id = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, tokenID))
}

// DeleteByTokenID removes the session record. Deleting a missing record is
// not an error; revocation is idempotent.
func (r *SessionRepository) DeleteByTokenID(ctx context.Context, tokenID string) error {
	query := `DELETE FROM sessions WHERE token_id = $1`

	_, err := r.pool.Exec(ctx, query, tokenID)
	return database.MapPostgresError(err)
}

// DeleteByUser removes every session for the user and returns how many
// were revoked.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// DeleteExpired removes rows with expires_at <= now. The boundary matches
// Session.Active (ExpiresAt.After(now)): a session expiring at the sweep
// instant is already inactive, so it goes too.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	result, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

func (r *SessionRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND expires_at > $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}
