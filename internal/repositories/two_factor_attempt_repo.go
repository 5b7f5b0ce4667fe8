package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// TwoFactorAttemptRepository records TOTP code checks used to throttle guessing
type TwoFactorAttemptRepository struct {
	db *database.DB
}

// NewTwoFactorAttemptRepository creates a new TwoFactorAttemptRepository
func NewTwoFactorAttemptRepository(db *database.DB) *TwoFactorAttemptRepository {
	return &TwoFactorAttemptRepository{db: db}
}

// ReserveAttempt stores attempt as a failure before the code is checked and returns
// the number of failures for the admin since `since`, this one included. Reservations
// for one admin are serialized by an advisory lock, so parallel checks cannot all
// observe a count below the limit. attempt.ID is set from the inserted row.
func (r *TwoFactorAttemptRepository) ReserveAttempt(ctx context.Context, attempt *models.TwoFactorAttempt, since time.Time) (int, error) {
	var failures int

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('2fa:' || $1::text))`, attempt.AdminID); err != nil {
			return fmt.Errorf("failed to acquire two-factor attempt lock: %w", err)
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO two_factor_attempts (admin_id, purpose, success, failure_reason, attempted_at)
			VALUES ($1, $2, false, $3, $4)
			RETURNING id
		`, attempt.AdminID, attempt.Purpose, attempt.FailureReason, attempt.AttemptedAt).Scan(&attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to record two-factor attempt: %w", database.MapPostgresError(err))
		}

		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM two_factor_attempts
			WHERE admin_id = $1 AND success = false AND attempted_at >= $2
		`, attempt.AdminID, since).Scan(&failures)
		if err != nil {
			return fmt.Errorf("failed to count two-factor failures: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return failures, nil
}

// ResolveAttempt stores the outcome of a reserved attempt
func (r *TwoFactorAttemptRepository) ResolveAttempt(ctx context.Context, id string, success bool, failureReason *string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE two_factor_attempts SET success = $2, failure_reason = $3
		WHERE id = $1
	`, id, success, failureReason)
	if err != nil {
		return fmt.Errorf("failed to resolve two-factor attempt: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes two-factor attempts recorded before cutoff
func (r *TwoFactorAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM two_factor_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
