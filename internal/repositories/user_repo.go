package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelane/authd/internal/database"
	"github.com/storelane/authd/internal/models"
)

// UserRepository is the credential store adapter. The auth core makes no
// assumption about the engine behind it beyond this interface surface.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, email, password_hash, failed_attempts, locked_until, created_at, updated_at`

// rowScanner lets scanUserRow serve both QueryRow and Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var lockedUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.FailedAttempts, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.LockedUntil = lockedUntil
	return &user, nil
}

// GetByEmail looks a user up case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// RecordFailure increments the failure counter and, when the limiter engaged
// a lockout on this attempt, persists its expiry.
func (r *UserRepository) RecordFailure(ctx context.Context, id string, lockedUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    locked_until = COALESCE($1, locked_until),
		    updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, lockedUntil, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordSuccess resets the failure counter and clears any lockout. A correct
// login fully exonerates the identity.
func (r *UserRepository) RecordSuccess(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Create inserts a new identity record. Used by seeding and tests; account
// registration itself lives outside this core.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, failed_attempts, created_at, updated_at)
		VALUES ($1, lower($2), $3, 0, NOW(), NOW())
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, uuid.New().String(), strings.TrimSpace(email), passwordHash))
}
