package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt. When trigger is non-nil the attempt is a
// failure and, in the same transaction, failures for the email since trigger.Since
// are counted and an email lockout is created if the threshold is reached and none
// is active. Writers for one email are serialized by a transaction-scoped advisory lock.
// The created lockout is returned, or nil.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, trigger *models.LockoutTrigger) (*models.AccountLockout, error) {
	var lockout *models.AccountLockout

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if trigger != nil {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, attempt.Email); err != nil {
				return fmt.Errorf("failed to acquire lockout lock: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			attempt.Email,
			attempt.IPAddress,
			models.TruncateUserAgent(attempt.UserAgent),
			attempt.Success,
			attempt.FailureReason,
			attempt.AttemptedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record login attempt: %w", database.MapPostgresError(err))
		}

		if trigger == nil {
			return nil
		}

		var failures int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM login_attempts
			WHERE email = $1 AND success = false AND attempted_at >= $2
		`, attempt.Email, trigger.Since).Scan(&failures)
		if err != nil {
			return fmt.Errorf("failed to count failed attempts: %w", err)
		}

		if !trigger.Breached(failures) {
			return nil
		}

		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM account_lockouts
				WHERE lockout_type = 'email' AND email = $1
				  AND unlocked_at IS NULL AND expires_at > $2
			)
		`, attempt.Email, attempt.AttemptedAt).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check existing lockout: %w", err)
		}
		if exists {
			return nil
		}

		lockout, err = scanLockoutRow(tx.QueryRow(ctx, `
			INSERT INTO account_lockouts (lockout_type, email, reason, failed_attempts, created_at, expires_at)
			VALUES ('email', $1, $2, $3, $4, $5)
			RETURNING `+lockoutColumns,
			attempt.Email, trigger.Reason, failures, attempt.AttemptedAt, trigger.ExpiresAt,
		))
		if err != nil {
			return fmt.Errorf("failed to create lockout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return lockout, nil
}

// ListRecent returns the most recent attempts for an email, newest first
func (r *LoginAttemptRepository) ListRecent(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, success, failure_reason, attempted_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.Success, &a.FailureReason, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login attempts: %w", err)
	}
	return attempts, nil
}

// DeleteOlderThan removes login attempts recorded before cutoff
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
