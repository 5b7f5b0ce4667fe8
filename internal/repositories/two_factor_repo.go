package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TwoFactorRepository handles per-admin TOTP enrollment state
type TwoFactorRepository struct {
	pool *pgxpool.Pool
}

// NewTwoFactorRepository creates a new TwoFactorRepository
func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{pool: db.Pool}
}

// Get returns the enrollment state for an admin, or ErrNotFound
func (r *TwoFactorRepository) Get(ctx context.Context, adminID string) (*models.TwoFactorState, error) {
	query := `
		SELECT admin_id, secret_encrypted, secret_nonce, is_enabled, is_verified, enabled_at, verified_at
		FROM admin_two_factor
		WHERE admin_id = $1
	`

	var st models.TwoFactorState
	err := r.pool.QueryRow(ctx, query, adminID).Scan(
		&st.AdminID, &st.SecretEncrypted, &st.SecretNonce,
		&st.IsEnabled, &st.IsVerified, &st.EnabledAt, &st.VerifiedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &st, nil
}

// Upsert replaces the secret and resets verification. Used by enrollment.
func (r *TwoFactorRepository) Upsert(ctx context.Context, st *models.TwoFactorState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_two_factor (admin_id, secret_encrypted, secret_nonce, is_enabled, is_verified, enabled_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (admin_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			is_enabled = EXCLUDED.is_enabled,
			is_verified = EXCLUDED.is_verified,
			enabled_at = EXCLUDED.enabled_at,
			verified_at = EXCLUDED.verified_at
	`, st.AdminID, st.SecretEncrypted, st.SecretNonce, st.IsEnabled, st.IsVerified, st.EnabledAt, st.VerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to store two-factor state: %w", database.MapPostgresError(err))
	}
	return nil
}

// MarkVerified sets is_verified on an enabled enrollment
func (r *TwoFactorRepository) MarkVerified(ctx context.Context, adminID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE admin_two_factor SET is_verified = true, verified_at = $2
		WHERE admin_id = $1 AND is_enabled = true
	`, adminID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes the enrollment
func (r *TwoFactorRepository) Delete(ctx context.Context, adminID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admin_two_factor WHERE admin_id = $1`, adminID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
