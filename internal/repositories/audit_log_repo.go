package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditLogColumns = `id, actor_id, actor_email, actor_role, session_id, action, category, resource,
	resource_id, target_tenant_id, target_user_id, old_value, new_value, metadata,
	ip_address, user_agent, risk_level, reason, correlation_id, created_at`

// scanAuditLogRow handles nullable fields and populates an AuditLogEntry from a database row
func scanAuditLogRow(row rowScanner) (*models.AuditLogEntry, error) {
	var e models.AuditLogEntry

	err := row.Scan(
		&e.ID, &e.ActorID, &e.ActorEmail, &e.ActorRole, &e.SessionID, &e.Action, &e.Category, &e.Resource,
		&e.ResourceID, &e.TargetTenantID, &e.TargetUserID, &e.OldValue, &e.NewValue, &e.Metadata,
		&e.IPAddress, &e.UserAgent, &e.RiskLevel, &e.Reason, &e.CorrelationID, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &e, nil
}

// scanAuditLogRows iterates through rows and scans each into AuditLogEntry models
func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLogEntry, error) {
	defer rows.Close()

	logs := make([]*models.AuditLogEntry, 0)

	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Create persists an audit log entry. Entries are never updated.
func (r *AuditLogRepository) Create(ctx context.Context, e *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (
			actor_id, actor_email, actor_role, session_id, action, category, resource,
			resource_id, target_tenant_id, target_user_id, old_value, new_value, metadata,
			ip_address, user_agent, risk_level, reason, correlation_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ActorID, e.ActorEmail, e.ActorRole, e.SessionID, e.Action, e.Category, e.Resource,
		e.ResourceID, e.TargetTenantID, e.TargetUserID, nullableJSON(e.OldValue), nullableJSON(e.NewValue), e.Metadata,
		e.IPAddress, e.UserAgent, e.RiskLevel, e.Reason, e.CorrelationID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return nil
}

// nullableJSON turns an empty raw message into SQL NULL
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func buildAuditWhere(f models.AuditFilter) (string, []any) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 6)

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.RiskLevel != "" {
		add("risk_level = $%d", string(f.RiskLevel))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns entries matching the filter, newest first
func (r *AuditLogRepository) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	where, args := buildAuditWhere(f)
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		auditLogColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return scanAuditLogRows(rows)
}

// Count returns the number of entries matching the filter
func (r *AuditLogRepository) Count(ctx context.Context, f models.AuditFilter) (int64, error) {
	where, args := buildAuditWhere(f)

	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// Cleanup removes audit logs older than the specified number of days
func (r *AuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < CURRENT_TIMESTAMP - INTERVAL '1 day' * $1
	`

	result, err := r.pool.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected(), nil
}
