package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminUserRepository struct {
	pool *pgxpool.Pool
}

func NewAdminUserRepository(db *database.DB) *AdminUserRepository {
	return &AdminUserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both pgx.Row and pgx.Rows)
type rowScanner interface {
	Scan(dest ...any) error
}

const adminUserColumns = `id, email, name, password_hash, role, is_active, password_changed_at, created_at`

func scanAdminUserRow(scanner rowScanner) (*models.AdminUser, error) {
	var user models.AdminUser
	var passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Role, &user.IsActive, &passwordChangedAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

func (r *AdminUserRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE id = $1`
	return scanAdminUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AdminUserRepository) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE lower(email) = lower($1)`
	return scanAdminUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AdminUserRepository) Create(ctx context.Context, user *models.AdminUser) (*models.AdminUser, error) {
	query := `
		INSERT INTO admin_users (email, name, password_hash, role, is_active, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + adminUserColumns

	created, err := scanAdminUserRow(r.pool.QueryRow(ctx, query,
		user.Email, user.Name, user.PasswordHash, user.Role, user.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}
	return created, nil
}

// Count returns the number of admin accounts, used to decide whether to bootstrap one
func (r *AdminUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count, err
}
