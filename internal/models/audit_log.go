package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is a coarse classification attached to an audited action
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AuditCategory groups audited actions
type AuditCategory string

const (
	AuditCategoryAuth     AuditCategory = "auth"
	AuditCategoryTenant   AuditCategory = "tenant"
	AuditCategoryUser     AuditCategory = "user"
	AuditCategoryConfig   AuditCategory = "config"
	AuditCategorySecurity AuditCategory = "security"
	AuditCategorySupport  AuditCategory = "support"
)

// Audited actions emitted by this service
const (
	AuditActionLogin            = "auth.login"
	AuditActionLogout           = "auth.logout"
	AuditActionLogoutOthers     = "session.terminate_all"
	AuditActionSessionTerminate = "session.terminate"
	AuditActionConfigUpdate     = "security.config_update"
	AuditActionIPRuleCreate     = "security.ip_rule_create"
	AuditActionIPRuleDelete     = "security.ip_rule_delete"
	AuditActionLockoutCreate    = "security.lockout_create"
	AuditActionLockoutUnlock    = "security.lockout_unlock"
	AuditActionTwoFactorSetup   = "security.2fa_setup"
	AuditActionTwoFactorVerify  = "security.2fa_verify"
	AuditActionTwoFactorDisable = "security.2fa_disable"
	AuditActionTwoFactorLimit   = "security.2fa_throttled"
)

// AuditLogEntry is an immutable record of an administrative action
type AuditLogEntry struct {
	ID             string          `db:"id" json:"id"`
	ActorID        string          `db:"actor_id" json:"actor_id"`
	ActorEmail     string          `db:"actor_email" json:"actor_email"`
	ActorRole      string          `db:"actor_role" json:"actor_role"`
	SessionID      *string         `db:"session_id" json:"session_id,omitempty"`
	Action         string          `db:"action" json:"action"`
	Category       AuditCategory   `db:"category" json:"category"`
	Resource       string          `db:"resource" json:"resource"`
	ResourceID     *string         `db:"resource_id" json:"resource_id,omitempty"`
	TargetTenantID *string         `db:"target_tenant_id" json:"target_tenant_id,omitempty"`
	TargetUserID   *string         `db:"target_user_id" json:"target_user_id,omitempty"`
	OldValue       json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue       json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Metadata       AuditMetadata   `db:"metadata" json:"metadata,omitempty"`
	IPAddress      string          `db:"ip_address" json:"ip_address"`
	UserAgent      string          `db:"user_agent" json:"user_agent"`
	RiskLevel      RiskLevel       `db:"risk_level" json:"risk_level"`
	Reason         *string         `db:"reason" json:"reason,omitempty"`
	CorrelationID  *string         `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter narrows an audit log query
type AuditFilter struct {
	ActorID   string
	Category  AuditCategory
	RiskLevel RiskLevel
	Action    string
	Limit     int
	Offset    int
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]any

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*am = make(AuditMetadata)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T: %w", value, ErrBadRequest)
	}

	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]any(am))
}
