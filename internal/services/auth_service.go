package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
)

// AdminUserRepository defines admin account lookups
type AdminUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
}

// Authenticator verifies admin credentials. It is the external credential step
// the login flow delegates to.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.AdminUser, error)
}

// PasswordAuthenticator checks bcrypt password hashes stored in admin_users
type PasswordAuthenticator struct {
	repo   AdminUserRepository
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewPasswordAuthenticator creates a new PasswordAuthenticator
func NewPasswordAuthenticator(repo AdminUserRepository, logger *slog.Logger) *PasswordAuthenticator {
	return &PasswordAuthenticator{repo: repo, logger: logger}
}

// burnCompare spends a bcrypt comparison so unknown emails cost the same as wrong passwords
func (a *PasswordAuthenticator) burnCompare(password string) {
	a.dummyOnce.Do(func() {
		hash, err := pkgauth.HashPassword("unused-dummy-password")
		if err == nil {
			a.dummyHash = hash
		}
	})
	if a.dummyHash != "" {
		_ = pkgauth.ComparePassword(a.dummyHash, password)
	}
}

// Authenticate returns the admin on success, ErrInvalidCredentials for unknown email or
// wrong password, and ErrAccountDisabled for inactive accounts with a correct password
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (*models.AdminUser, error) {
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := a.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.burnCompare(password)
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load admin: %w", err)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	if !user.IsActive {
		a.logger.InfoContext(ctx, "login blocked: admin disabled", slog.String("admin_id", user.ID))
		return nil, models.ErrAccountDisabled
	}

	return user, nil
}
