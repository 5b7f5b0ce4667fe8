package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockoutRepository handles database operations for account lockouts
type LockoutRepository struct {
	pool *pgxpool.Pool
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{pool: db.Pool}
}

const lockoutColumns = `id, lockout_type, email, ip_address, reason, failed_attempts, created_at, expires_at, unlocked_at, unlocked_by`

func scanLockoutRow(row rowScanner) (*models.AccountLockout, error) {
	var l models.AccountLockout
	err := row.Scan(
		&l.ID, &l.LockoutType, &l.Email, &l.IPAddress, &l.Reason, &l.FailedAttempts,
		&l.CreatedAt, &l.ExpiresAt, &l.UnlockedAt, &l.UnlockedBy,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

func scanLockoutRows(rows pgx.Rows) ([]*models.AccountLockout, error) {
	defer rows.Close()

	lockouts := make([]*models.AccountLockout, 0)
	for rows.Next() {
		l, err := scanLockoutRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lockout: %w", err)
		}
		lockouts = append(lockouts, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lockout rows: %w", err)
	}
	return lockouts, nil
}

// FindActive returns the active lockouts matching the email or the ip.
// Email and account lockouts sort before ip lockouts.
func (r *LockoutRepository) FindActive(ctx context.Context, email, ip string, now time.Time) ([]*models.AccountLockout, error) {
	query := `
		SELECT ` + lockoutColumns + `
		FROM account_lockouts
		WHERE unlocked_at IS NULL
		  AND expires_at > $3
		  AND (
		        (lockout_type IN ('email', 'account') AND email = $1)
		     OR (lockout_type = 'ip' AND ip_address = $2)
		  )
		ORDER BY CASE WHEN lockout_type = 'ip' THEN 1 ELSE 0 END, expires_at DESC
	`

	rows, err := r.pool.Query(ctx, query, email, ip, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active lockouts: %w", err)
	}
	return scanLockoutRows(rows)
}

// Create inserts a lockout row
func (r *LockoutRepository) Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error) {
	query := `
		INSERT INTO account_lockouts (lockout_type, email, ip_address, reason, failed_attempts, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + lockoutColumns

	created, err := scanLockoutRow(r.pool.QueryRow(ctx, query,
		l.LockoutType, l.Email, l.IPAddress, l.Reason, l.FailedAttempts, l.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create lockout: %w", err)
	}
	return created, nil
}

// Unlock releases an active lockout. The row is kept for history.
// Returns ErrNotFound if the lockout does not exist or is already released.
func (r *LockoutRepository) Unlock(ctx context.Context, id, unlockedBy string, now time.Time) (*models.AccountLockout, error) {
	query := `
		UPDATE account_lockouts
		SET unlocked_at = $2, unlocked_by = $3
		WHERE id = $1 AND unlocked_at IS NULL AND expires_at > $2
		RETURNING ` + lockoutColumns

	return scanLockoutRow(r.pool.QueryRow(ctx, query, id, now, unlockedBy))
}

// ListActive returns every lockout still in force, newest first
func (r *LockoutRepository) ListActive(ctx context.Context, now time.Time) ([]*models.AccountLockout, error) {
	query := `
		SELECT ` + lockoutColumns + `
		FROM account_lockouts
		WHERE unlocked_at IS NULL AND expires_at > $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list lockouts: %w", err)
	}
	return scanLockoutRows(rows)
}
