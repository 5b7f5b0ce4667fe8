package models

import "time"

// Session termination reasons
const (
	TerminationExpired           = "expired"
	TerminationInactivityTimeout = "inactivity_timeout"
	TerminationLogout            = "logout"
	TerminationRevoked           = "revoked"
	TerminationLogoutOthers      = "logout_others"
	TerminationSecurityPolicy    = "security_policy"
)

// AdminSession is the server-side record backing an issued admin credential
type AdminSession struct {
	ID                string         `db:"id" json:"id"`
	AdminID           string         `db:"admin_id" json:"admin_id"`
	TokenHash         string         `db:"token_hash" json:"-"`
	IPAddress         string         `db:"ip_address" json:"ip_address"`
	UserAgent         string         `db:"user_agent" json:"user_agent"`
	DeviceInfo        map[string]any `db:"device_info" json:"device_info,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt         time.Time      `db:"expires_at" json:"expires_at"`
	LastActivityAt    time.Time      `db:"last_activity_at" json:"last_activity_at"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	TerminatedAt      *time.Time     `db:"terminated_at" json:"terminated_at,omitempty"`
	TerminationReason *string        `db:"termination_reason" json:"termination_reason,omitempty"`
}

// SessionValidation is the outcome of validating a session token
type SessionValidation struct {
	Valid   bool
	Reason  string
	Session *AdminSession
}
