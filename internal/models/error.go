package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication and account state errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")

	// Session errors
	ErrSessionInvalid = errors.New("session is invalid")

	// Two-factor errors
	ErrTwoFactorNotEnrolled = errors.New("two-factor authentication is not enrolled")
	ErrTwoFactorInvalidCode = errors.New("invalid two-factor code")
	ErrTwoFactorRateLimited = errors.New("too many two-factor attempts")

	// Security configuration errors
	ErrInvalidSecurityConfig = errors.New("invalid security configuration")

	// ErrSecurityUnavailable is returned when a fail-closed check cannot read its state
	ErrSecurityUnavailable = errors.New("security state unavailable")
)
