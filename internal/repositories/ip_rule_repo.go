package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IPRuleRepository handles ip allow/deny rule persistence
type IPRuleRepository struct {
	pool *pgxpool.Pool
}

// NewIPRuleRepository creates a new IPRuleRepository
func NewIPRuleRepository(db *database.DB) *IPRuleRepository {
	return &IPRuleRepository{pool: db.Pool}
}

const ipRuleColumns = `id, rule_type, ip_pattern, description, is_active, expires_at, created_by, created_at`

func scanIPRuleRow(row rowScanner) (*models.IPRule, error) {
	var rule models.IPRule
	err := row.Scan(
		&rule.ID, &rule.RuleType, &rule.IPPattern, &rule.Description,
		&rule.IsActive, &rule.ExpiresAt, &rule.CreatedBy, &rule.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rule, nil
}

// Create inserts a new rule
func (r *IPRuleRepository) Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error) {
	query := `
		INSERT INTO ip_rules (rule_type, ip_pattern, description, is_active, expires_at, created_by)
		VALUES ($1, $2, $3, true, $4, $5)
		RETURNING ` + ipRuleColumns

	created, err := scanIPRuleRow(r.pool.QueryRow(ctx, query,
		rule.RuleType, rule.IPPattern, rule.Description, rule.ExpiresAt, rule.CreatedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create ip rule: %w", err)
	}
	return created, nil
}

// ListEffective returns active rules that have not expired at now
func (r *IPRuleRepository) ListEffective(ctx context.Context, now time.Time) ([]models.IPRule, error) {
	query := `
		SELECT ` + ipRuleColumns + `
		FROM ip_rules
		WHERE is_active = true AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip rules: %w", err)
	}
	defer rows.Close()

	rules := make([]models.IPRule, 0)
	for rows.Next() {
		rule, err := scanIPRuleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ip rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ip rules: %w", err)
	}
	return rules, nil
}

// Deactivate soft-deletes a rule. Returns ErrNotFound if no active rule has the id.
func (r *IPRuleRepository) Deactivate(ctx context.Context, id string) (*models.IPRule, error) {
	query := `
		UPDATE ip_rules SET is_active = false
		WHERE id = $1 AND is_active = true
		RETURNING ` + ipRuleColumns
	return scanIPRuleRow(r.pool.QueryRow(ctx, query, id))
}

// DeactivateExpired soft-deletes rules whose expiry has passed
func (r *IPRuleRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ip_rules SET is_active = false
		WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
