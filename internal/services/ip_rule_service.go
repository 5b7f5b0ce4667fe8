package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// IPRuleRepository defines the storage used by IPRuleService
type IPRuleRepository interface {
	Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error)
	ListEffective(ctx context.Context, now time.Time) ([]models.IPRule, error)
	Deactivate(ctx context.Context, id string) (*models.IPRule, error)
}

// IPDecision is the outcome of evaluating a client address against the rule set
type IPDecision struct {
	Allowed bool
	Reason  string
	Rule    *models.IPRule
}

// ipv4ToUint32 parses a dotted IPv4 address. IPv6 and malformed input return ok=false.
func ipv4ToUint32(s string) (uint32, bool) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return 0, false
	}
	v4 := ip.To4()
	if v4 == nil || strings.Contains(s, ":") {
		return 0, false
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), true
}

// IPMatchesCIDR reports whether ip matches pattern. A pattern without a prefix
// matches only the identical address. Malformed input never matches.
func IPMatchesCIDR(ip, pattern string) bool {
	if ip == pattern {
		return true
	}

	network, prefixStr, hasPrefix := strings.Cut(pattern, "/")
	if !hasPrefix {
		return false
	}

	prefix, err := strconv.Atoi(prefixStr)
	if err != nil || prefix < 0 || prefix > 32 {
		return false
	}

	ipVal, ok := ipv4ToUint32(ip)
	if !ok {
		return false
	}
	netVal, ok := ipv4ToUint32(network)
	if !ok {
		return false
	}

	// shift in 64 bits so a /0 prefix yields an all-zero mask
	mask := ^uint32((uint64(1) << (32 - prefix)) - 1)
	return ipVal&mask == netVal&mask
}

// EvaluateRules applies blacklist-then-whitelist semantics to ip
func EvaluateRules(ip string, rules []models.IPRule, requireWhitelist bool) IPDecision {
	for i := range rules {
		r := &rules[i]
		if r.RuleType == models.IPRuleBlacklist && r.IPPattern == ip {
			return IPDecision{Allowed: false, Reason: "blacklisted", Rule: r}
		}
	}

	for i := range rules {
		r := &rules[i]
		if r.RuleType == models.IPRuleBlacklist && IPMatchesCIDR(ip, r.IPPattern) {
			return IPDecision{Allowed: false, Reason: "blacklisted", Rule: r}
		}
	}

	if !requireWhitelist {
		return IPDecision{Allowed: true}
	}

	for i := range rules {
		r := &rules[i]
		if r.RuleType == models.IPRuleWhitelist && IPMatchesCIDR(ip, r.IPPattern) {
			return IPDecision{Allowed: true, Rule: r}
		}
	}

	return IPDecision{Allowed: false, Reason: "not whitelisted"}
}

// IPRuleService evaluates and manages ip allow/deny rules
type IPRuleService struct {
	repo   IPRuleRepository
	config SecurityConfigProvider
	logger *slog.Logger
	now    func() time.Time
}

// NewIPRuleService creates a new IPRuleService
func NewIPRuleService(repo IPRuleRepository, config SecurityConfigProvider, logger *slog.Logger) *IPRuleService {
	return &IPRuleService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate loads the effective rules and the whitelist requirement and evaluates ip.
// A storage error is returned to the caller, which decides whether to fail closed.
func (s *IPRuleService) Evaluate(ctx context.Context, ip string) (IPDecision, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return IPDecision{}, err
	}

	rules, err := s.repo.ListEffective(ctx, s.now())
	if err != nil {
		return IPDecision{}, fmt.Errorf("load ip rules: %w", err)
	}

	return EvaluateRules(ip, rules, cfg.RequireIPWhitelist), nil
}

// ValidPattern reports whether pattern is a single IPv4 address or an IPv4 CIDR
func ValidPattern(pattern string) bool {
	network, prefixStr, hasPrefix := strings.Cut(pattern, "/")
	if _, ok := ipv4ToUint32(network); !ok {
		return false
	}
	if !hasPrefix {
		return true
	}
	prefix, err := strconv.Atoi(prefixStr)
	return err == nil && prefix >= 0 && prefix <= 32
}

// Create stores a new rule after checking its pattern
func (s *IPRuleService) Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error) {
	if rule.RuleType != models.IPRuleWhitelist && rule.RuleType != models.IPRuleBlacklist {
		return nil, fmt.Errorf("unknown rule type %q: %w", rule.RuleType, models.ErrBadRequest)
	}
	if !ValidPattern(rule.IPPattern) {
		return nil, fmt.Errorf("invalid ip pattern %q: %w", rule.IPPattern, models.ErrBadRequest)
	}
	if rule.ExpiresAt != nil && !rule.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("expiry is in the past: %w", models.ErrBadRequest)
	}

	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ip rule created",
		slog.String("rule_id", created.ID),
		slog.String("rule_type", string(created.RuleType)),
		slog.String("pattern", created.IPPattern),
		slog.String("created_by", created.CreatedBy),
	)
	return created, nil
}

// ListActive returns the rules currently in effect
func (s *IPRuleService) ListActive(ctx context.Context) ([]models.IPRule, error) {
	return s.repo.ListEffective(ctx, s.now())
}

// Deactivate soft-deletes a rule
func (s *IPRuleService) Deactivate(ctx context.Context, id string) (*models.IPRule, error) {
	rule, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ip rule deactivated", slog.String("rule_id", id))
	return rule, nil
}
