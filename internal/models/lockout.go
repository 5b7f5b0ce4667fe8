package models

import (
	"fmt"
	"time"
)

// LockoutType identifies what a lockout applies to
type LockoutType string

const (
	LockoutTypeEmail   LockoutType = "email"
	LockoutTypeIP      LockoutType = "ip"
	LockoutTypeAccount LockoutType = "account"
)

// AccountLockout is a time-bounded denial of authentication.
// It is active iff ExpiresAt is in the future and UnlockedAt is nil.
type AccountLockout struct {
	ID             string      `db:"id" json:"id"`
	LockoutType    LockoutType `db:"lockout_type" json:"lockout_type"`
	Email          *string     `db:"email" json:"email,omitempty"`
	IPAddress      *string     `db:"ip_address" json:"ip_address,omitempty"`
	Reason         string      `db:"reason" json:"reason"`
	FailedAttempts int         `db:"failed_attempts" json:"failed_attempts"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time   `db:"expires_at" json:"expires_at"`
	UnlockedAt     *time.Time  `db:"unlocked_at" json:"unlocked_at,omitempty"`
	UnlockedBy     *string     `db:"unlocked_by" json:"unlocked_by,omitempty"`
}

// IsActive reports whether the lockout still denies authentication at now
func (l *AccountLockout) IsActive(now time.Time) bool {
	return l.UnlockedAt == nil && l.ExpiresAt.After(now)
}

// LockoutTrigger carries the threshold evaluated when a failed attempt is recorded
type LockoutTrigger struct {
	Since       time.Time
	MaxAttempts int
	ExpiresAt   time.Time
	Reason      string
}

// NewLockoutTrigger builds the trigger for a failed attempt observed at now
func NewLockoutTrigger(now time.Time, maxAttempts int, lockoutDuration time.Duration) *LockoutTrigger {
	return &LockoutTrigger{
		Since:       now.Add(-LockoutLookbackWindow),
		MaxAttempts: maxAttempts,
		ExpiresAt:   now.Add(lockoutDuration),
		Reason:      fmt.Sprintf("Exceeded maximum login attempts (%d)", maxAttempts),
	}
}

// Breached reports whether the observed failure count reaches the threshold.
// At-least semantics: concurrent writers may observe more than MaxAttempts.
func (t *LockoutTrigger) Breached(failures int) bool {
	return t.MaxAttempts > 0 && failures >= t.MaxAttempts
}

// LockoutStatus is the result of a lockout check
type LockoutStatus struct {
	Locked    bool
	Reason    string
	ExpiresAt *time.Time
	Lockout   *AccountLockout
}
