package models

import "time"

// AdminUser is a platform administrator known to the built-in authenticator
type AdminUser struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	Role              string
	IsActive          bool
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
}

// AdminPrincipal is the authenticated admin attached to a request context
type AdminPrincipal struct {
	AdminID   string
	Email     string
	Role      string
	SessionID string
}
