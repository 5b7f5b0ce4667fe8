package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityConfigRepository stores versioned security policy overrides
type SecurityConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityConfigRepository creates a new SecurityConfigRepository
func NewSecurityConfigRepository(db *database.DB) *SecurityConfigRepository {
	return &SecurityConfigRepository{pool: db.Pool}
}

// StoredSecurityConfig is one persisted version of the overrides
type StoredSecurityConfig struct {
	Version   int64
	Overrides models.SecurityConfigOverrides
	UpdatedBy string
	CreatedAt time.Time
}

// Latest returns the newest stored version, or nil when nothing has been stored yet
func (r *SecurityConfigRepository) Latest(ctx context.Context) (*StoredSecurityConfig, error) {
	query := `
		SELECT version, overrides, updated_by, created_at
		FROM security_config
		ORDER BY version DESC
		LIMIT 1
	`

	var stored StoredSecurityConfig
	var raw []byte
	err := r.pool.QueryRow(ctx, query).Scan(&stored.Version, &raw, &stored.UpdatedBy, &stored.CreatedAt)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load security config: %w", err)
	}

	if err := json.Unmarshal(raw, &stored.Overrides); err != nil {
		return nil, fmt.Errorf("failed to decode security config overrides: %w", err)
	}

	return &stored, nil
}

// Insert stores a new version and returns it
func (r *SecurityConfigRepository) Insert(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*StoredSecurityConfig, error) {
	raw, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to encode security config overrides: %w", err)
	}

	stored := StoredSecurityConfig{Overrides: *overrides, UpdatedBy: updatedBy}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO security_config (overrides, updated_by)
		VALUES ($1, $2)
		RETURNING version, created_at
	`, string(raw), updatedBy).Scan(&stored.Version, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store security config: %w", database.MapPostgresError(err))
	}

	return &stored, nil
}
