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

// SessionRepository handles admin session persistence
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, admin_id, token_hash, ip_address, user_agent, device_info, created_at,
	expires_at, last_activity_at, is_active, terminated_at, termination_reason`

func scanSessionRow(row rowScanner) (*models.AdminSession, error) {
	var s models.AdminSession
	err := row.Scan(
		&s.ID, &s.AdminID, &s.TokenHash, &s.IPAddress, &s.UserAgent, &s.DeviceInfo, &s.CreatedAt,
		&s.ExpiresAt, &s.LastActivityAt, &s.IsActive, &s.TerminatedAt, &s.TerminationReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.AdminSession, error) {
	defer rows.Close()

	sessions := make([]*models.AdminSession, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// Create persists a new active session
func (r *SessionRepository) Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error) {
	query := `
		INSERT INTO admin_sessions (admin_id, token_hash, ip_address, user_agent, device_info, created_at, expires_at, last_activity_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6, true)
		RETURNING ` + sessionColumns

	created, err := scanSessionRow(r.pool.QueryRow(ctx, query,
		s.AdminID, s.TokenHash, s.IPAddress, s.UserAgent, s.DeviceInfo, s.CreatedAt, s.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// GetActiveByTokenHash returns the active session for a token hash
func (r *SessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM admin_sessions WHERE token_hash = $1 AND is_active = true`
	return scanSessionRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// GetByID returns a session regardless of state
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.AdminSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM admin_sessions WHERE id = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

// Touch refreshes last activity of an active session
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE admin_sessions SET last_activity_at = $2
		WHERE token_hash = $1 AND is_active = true
	`, tokenHash, now)
	return err
}

// Terminate deactivates one session. Already terminated sessions are left untouched
// and reported as false.
func (r *SessionRepository) Terminate(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE admin_sessions
		SET is_active = false, terminated_at = $2, termination_reason = $3
		WHERE id = $1 AND is_active = true
	`, id, now, reason)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// TerminateAll deactivates every active session of an admin except exceptID (if non-empty)
func (r *SessionRepository) TerminateAll(ctx context.Context, adminID, reason, exceptID string, now time.Time) (int64, error) {
	query := `
		UPDATE admin_sessions
		SET is_active = false, terminated_at = $2, termination_reason = $3
		WHERE admin_id = $1 AND is_active = true
	`
	args := []any{adminID, now, reason}
	if exceptID != "" {
		query += ` AND id <> $4`
		args = append(args, exceptID)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns the active sessions of an admin, most recently used first
func (r *SessionRepository) ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM admin_sessions
		WHERE admin_id = $1 AND is_active = true
		ORDER BY last_activity_at DESC
	`
	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return scanSessionRows(rows)
}

// ExpireStale deactivates sessions past their absolute expiry or idle since before idleCutoff
func (r *SessionRepository) ExpireStale(ctx context.Context, now, idleCutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE admin_sessions
		SET is_active = false,
		    terminated_at = $1,
		    termination_reason = CASE WHEN expires_at < $1 THEN 'expired' ELSE 'inactivity_timeout' END
		WHERE is_active = true AND (expires_at < $1 OR last_activity_at < $2)
	`, now, idleCutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
