package models

import "time"

// MaxUserAgentLength bounds the stored user-agent string
const MaxUserAgentLength = 512

// LockoutLookbackWindow is the trailing window used to count failed attempts
const LockoutLookbackWindow = 30 * time.Minute

// LoginAttempt represents a single authentication attempt. Rows are append-only.
type LoginAttempt struct {
	ID            string    `db:"id"`
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	AttemptedAt   time.Time `db:"attempted_at"`
}

// TruncateUserAgent cuts a user-agent to MaxUserAgentLength bytes without splitting a UTF-8 sequence
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := MaxUserAgentLength
	for cut > 0 && ua[cut]&0xC0 == 0x80 {
		cut--
	}
	return ua[:cut]
}
