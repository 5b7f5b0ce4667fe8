package models

import "time"

// IPRuleType distinguishes allow from deny rules
type IPRuleType string

const (
	IPRuleWhitelist IPRuleType = "whitelist"
	IPRuleBlacklist IPRuleType = "blacklist"
)

// IPRule matches a single IPv4 address or an IPv4 CIDR range
type IPRule struct {
	ID          string     `db:"id" json:"id"`
	RuleType    IPRuleType `db:"rule_type" json:"rule_type"`
	IPPattern   string     `db:"ip_pattern" json:"ip_pattern"`
	Description string     `db:"description" json:"description"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsEffective reports whether the rule participates in evaluation at now
func (r *IPRule) IsEffective(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}
