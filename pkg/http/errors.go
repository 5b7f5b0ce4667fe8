package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Stable machine-readable error codes
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
	CodeIPRestricted        = "IP_RESTRICTED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeSessionInvalid      = "SESSION_INVALID"
	Code2FASetupRequired    = "2FA_SETUP_REQUIRED"
	Code2FAVerifyRequired   = "2FA_VERIFICATION_REQUIRED"
	Code2FAInvalidCode      = "2FA_INVALID_CODE"
	CodeSecurityUnavailable = "SECURITY_UNAVAILABLE"
)

// ErrorResponse is the JSON body of every error and policy denial
type ErrorResponse struct {
	Message    string     `json:"message"`
	Code       string     `json:"code"`
	RetryAfter int        `json:"retryAfter,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Message: message, Code: code})
}

// WriteDenial writes a policy denial. A positive RetryAfter also sets the Retry-After header.
func WriteDenial(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	if resp.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	WriteJSON(w, statusCode, resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}

// WriteSecurityUnavailable is used when a fail-closed gate cannot read its state
func WriteSecurityUnavailable(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, CodeSecurityUnavailable, "Security service temporarily unavailable")
}
