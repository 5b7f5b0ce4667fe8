package models

import (
	"fmt"
	"slices"
	"time"
)

// SecurityConfig is the process-wide security policy, merged from defaults and stored overrides
type SecurityConfig struct {
	Version                     int64     `json:"version"`
	MaxLoginAttempts            int       `json:"maxLoginAttempts"`
	LockoutDurationMinutes      int       `json:"lockoutDurationMinutes"`
	SessionTimeoutMinutes       int       `json:"sessionTimeoutMinutes"`
	SessionAbsoluteTimeoutHours int       `json:"sessionAbsoluteTimeoutHours"`
	RequireIPWhitelist          bool      `json:"requireIpWhitelist"`
	Require2FA                  bool      `json:"require2FA"`
	Require2FAForSuperAdmin     bool      `json:"require2FAForSuperAdmin"`
	PasswordExpiryDays          int       `json:"passwordExpiryDays"`
	MinPasswordLength           int       `json:"minPasswordLength"`
	AuditLogRetentionDays       int       `json:"auditLogRetentionDays"`
	HighRiskActions             []string  `json:"highRiskActions"`
	UpdatedBy                   string    `json:"updatedBy,omitempty"`
	UpdatedAt                   time.Time `json:"updatedAt,omitempty"`
}

// SecurityConfigOverrides is the stored, partial form of SecurityConfig.
// Nil fields fall back to the defaults.
type SecurityConfigOverrides struct {
	MaxLoginAttempts            *int     `json:"maxLoginAttempts,omitempty" validate:"omitempty,gte=1,lte=100"`
	LockoutDurationMinutes      *int     `json:"lockoutDurationMinutes,omitempty" validate:"omitempty,gte=1,lte=10080"`
	SessionTimeoutMinutes       *int     `json:"sessionTimeoutMinutes,omitempty" validate:"omitempty,gte=1,lte=1440"`
	SessionAbsoluteTimeoutHours *int     `json:"sessionAbsoluteTimeoutHours,omitempty" validate:"omitempty,gte=1,lte=720"`
	RequireIPWhitelist          *bool    `json:"requireIpWhitelist,omitempty"`
	Require2FA                  *bool    `json:"require2FA,omitempty"`
	Require2FAForSuperAdmin     *bool    `json:"require2FAForSuperAdmin,omitempty"`
	PasswordExpiryDays          *int     `json:"passwordExpiryDays,omitempty" validate:"omitempty,gte=0,lte=3650"`
	MinPasswordLength           *int     `json:"minPasswordLength,omitempty" validate:"omitempty,gte=8,lte=128"`
	AuditLogRetentionDays       *int     `json:"auditLogRetentionDays,omitempty" validate:"omitempty,gte=1,lte=3650"`
	HighRiskActions             []string `json:"highRiskActions,omitempty" validate:"omitempty,dive,required"`
}

// DefaultSecurityConfig returns the hard-coded baseline policy
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxLoginAttempts:            5,
		LockoutDurationMinutes:      30,
		SessionTimeoutMinutes:       30,
		SessionAbsoluteTimeoutHours: 24,
		RequireIPWhitelist:          false,
		Require2FA:                  false,
		Require2FAForSuperAdmin:     true,
		PasswordExpiryDays:          90,
		MinPasswordLength:           12,
		AuditLogRetentionDays:       365,
		HighRiskActions: []string{
			"tenant.delete",
			"tenant.suspend",
			"admin.delete_tenant",
			"user.impersonate",
			AuditActionConfigUpdate,
			AuditActionIPRuleDelete,
			AuditActionTwoFactorDisable,
			AuditActionLogoutOthers,
		},
	}
}

// Merge applies overrides over c and returns a new config
func (c *SecurityConfig) Merge(o *SecurityConfigOverrides) *SecurityConfig {
	merged := *c
	merged.HighRiskActions = slices.Clone(c.HighRiskActions)
	if o == nil {
		return &merged
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setInt(&merged.MaxLoginAttempts, o.MaxLoginAttempts)
	setInt(&merged.LockoutDurationMinutes, o.LockoutDurationMinutes)
	setInt(&merged.SessionTimeoutMinutes, o.SessionTimeoutMinutes)
	setInt(&merged.SessionAbsoluteTimeoutHours, o.SessionAbsoluteTimeoutHours)
	setBool(&merged.RequireIPWhitelist, o.RequireIPWhitelist)
	setBool(&merged.Require2FA, o.Require2FA)
	setBool(&merged.Require2FAForSuperAdmin, o.Require2FAForSuperAdmin)
	setInt(&merged.PasswordExpiryDays, o.PasswordExpiryDays)
	setInt(&merged.MinPasswordLength, o.MinPasswordLength)
	setInt(&merged.AuditLogRetentionDays, o.AuditLogRetentionDays)
	if o.HighRiskActions != nil {
		merged.HighRiskActions = slices.Clone(o.HighRiskActions)
	}

	return &merged
}

// Validate checks invariants that span fields
func (c *SecurityConfig) Validate() error {
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("maxLoginAttempts must be positive: %w", ErrInvalidSecurityConfig)
	}
	if c.SessionTimeoutMinutes < 1 || c.SessionAbsoluteTimeoutHours < 1 {
		return fmt.Errorf("session timeouts must be positive: %w", ErrInvalidSecurityConfig)
	}
	if time.Duration(c.SessionTimeoutMinutes)*time.Minute > time.Duration(c.SessionAbsoluteTimeoutHours)*time.Hour {
		return fmt.Errorf("inactivity timeout exceeds absolute timeout: %w", ErrInvalidSecurityConfig)
	}
	return nil
}

// LockoutDuration returns LockoutDurationMinutes as a duration
func (c *SecurityConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationMinutes) * time.Minute
}

// InactivityTimeout returns SessionTimeoutMinutes as a duration
func (c *SecurityConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// AbsoluteTimeout returns SessionAbsoluteTimeoutHours as a duration
func (c *SecurityConfig) AbsoluteTimeout() time.Duration {
	return time.Duration(c.SessionAbsoluteTimeoutHours) * time.Hour
}
