package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmercer-dev/authgate/internal/database"
	"github.com/jmercer-dev/authgate/internal/models"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var lockedUntil *time.Time

	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Name, &account.Role, &account.Status,
		&account.FailedAttempts, &lockedUntil,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.LockedUntil = lockedUntil
	return &account, nil
}

const accountColumns = `id, username, email, password_hash, name, role, status, failed_attempts, locked_until, created_at, updated_at`

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = "user"
	}
	if account.Status == "" {
		account.Status = "active"
	}

	query := `
		INSERT INTO accounts (id, username, email, password_hash, name, role, status, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Name, account.Role, account.Status,
		account.FailedAttempts, account.CreatedAt, account.UpdatedAt,
	))
}

// UpdateFailureState writes the failure counter and lock expiry together so
// the two can never disagree on the row.
func (r *AccountRepository) UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	query := `
		UPDATE accounts SET failed_attempts = $1, locked_until = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.pool.Exec(ctx, query, failedAttempts, lockedUntil, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) ResetFailureState(ctx context.Context, id string) error {
	return r.UpdateFailureState(ctx, id, 0, nil)
}

// UpdateStatus moves the account between active, suspended and disabled.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
