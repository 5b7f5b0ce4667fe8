package models

import "time"

// RoleSuperAdmin is the only role name interpreted by the security core
const RoleSuperAdmin = "SUPER_ADMIN"

// TwoFactorState is the per-admin enrollment state. It persists across sessions.
type TwoFactorState struct {
	AdminID         string
	SecretEncrypted []byte // AES-256-GCM encrypted TOTP secret
	SecretNonce     []byte
	IsEnabled       bool
	IsVerified      bool
	EnabledAt       *time.Time
	VerifiedAt      *time.Time
}

// TwoFactorStatus is the resolved policy for one admin
type TwoFactorStatus struct {
	Required bool `json:"required"`
	Enabled  bool `json:"enabled"`
	Verified bool `json:"verified"`
}

// SetupRequired reports whether the admin must enroll before proceeding
func (s TwoFactorStatus) SetupRequired() bool {
	return s.Required && !s.Enabled
}

// VerificationRequired reports whether the admin enrolled but has not verified
func (s TwoFactorStatus) VerificationRequired() bool {
	return s.Required && s.Enabled && !s.Verified
}

// Two-factor attempt purposes
const (
	TwoFactorPurposeVerify  = "verify"
	TwoFactorPurposeDisable = "disable"
)

// TwoFactorAttempt is one TOTP code check. Failed checks inside the throttle
// window count against the admin's allowance.
type TwoFactorAttempt struct {
	ID            string
	AdminID       string
	Purpose       string
	Success       bool
	FailureReason *string
	AttemptedAt   time.Time
}
