package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPMatchesCIDR(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		pattern string
		want    bool
	}{
		{"exact match", "10.0.0.5", "10.0.0.5", true},
		{"exact mismatch", "10.0.0.5", "10.0.0.6", false},
		{"inside /24", "192.168.1.77", "192.168.1.0/24", true},
		{"outside /24", "192.168.2.1", "192.168.1.0/24", false},
		{"/32 exact", "10.1.2.3", "10.1.2.3/32", true},
		{"/32 other", "10.1.2.4", "10.1.2.3/32", false},
		{"/0 matches all", "8.8.8.8", "0.0.0.0/0", true},
		{"/8 boundary", "10.255.255.255", "10.0.0.0/8", true},
		{"prefix over 32", "10.0.0.1", "10.0.0.0/33", false},
		{"negative prefix", "10.0.0.1", "10.0.0.0/-1", false},
		{"non numeric prefix", "10.0.0.1", "10.0.0.0/abc", false},
		{"bad network", "10.0.0.1", "10.0.0/8", false},
		{"bad ip", "not-an-ip", "10.0.0.0/8", false},
		{"ipv6 never matches cidr", "::1", "0.0.0.0/0", false},
		{"ipv4 mapped ipv6", "::ffff:10.0.0.1", "10.0.0.0/8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IPMatchesCIDR(tt.ip, tt.pattern))
		})
	}
}

func TestEvaluateRules(t *testing.T) {
	rules := []models.IPRule{
		{ID: "w1", RuleType: models.IPRuleWhitelist, IPPattern: "10.0.0.0/8", IsActive: true},
		{ID: "b1", RuleType: models.IPRuleBlacklist, IPPattern: "10.0.0.66", IsActive: true},
		{ID: "b2", RuleType: models.IPRuleBlacklist, IPPattern: "172.16.0.0/12", IsActive: true},
	}

	t.Run("blacklist beats whitelist", func(t *testing.T) {
		d := EvaluateRules("10.0.0.66", rules, true)
		assert.False(t, d.Allowed)
		assert.Equal(t, "blacklisted", d.Reason)
		require.NotNil(t, d.Rule)
		assert.Equal(t, "b1", d.Rule.ID)
	})

	t.Run("cidr blacklist", func(t *testing.T) {
		d := EvaluateRules("172.20.1.1", rules, false)
		assert.False(t, d.Allowed)
		assert.Equal(t, "b2", d.Rule.ID)
	})

	t.Run("whitelist not required allows unknown", func(t *testing.T) {
		d := EvaluateRules("8.8.8.8", rules, false)
		assert.True(t, d.Allowed)
	})

	t.Run("whitelist required denies unknown", func(t *testing.T) {
		d := EvaluateRules("8.8.8.8", rules, true)
		assert.False(t, d.Allowed)
		assert.Equal(t, "not whitelisted", d.Reason)
	})

	t.Run("whitelist required allows listed", func(t *testing.T) {
		d := EvaluateRules("10.9.9.9", rules, true)
		assert.True(t, d.Allowed)
		assert.Equal(t, "w1", d.Rule.ID)
	})

	t.Run("empty whitelist with requirement denies", func(t *testing.T) {
		d := EvaluateRules("10.9.9.9", nil, true)
		assert.False(t, d.Allowed)
	})
}

func TestIPRuleService_Evaluate(t *testing.T) {
	ctx := context.Background()
	repo := &MockIPRuleRepository{
		ListEffectiveFunc: func(ctx context.Context, now time.Time) ([]models.IPRule, error) {
			return []models.IPRule{{RuleType: models.IPRuleWhitelist, IPPattern: "192.168.0.0/16", IsActive: true}}, nil
		},
	}
	cfg := models.DefaultSecurityConfig()
	cfg.RequireIPWhitelist = true
	svc := NewIPRuleService(repo, &StaticConfigProvider{Config: cfg}, newTestLogger())

	d, err := svc.Evaluate(ctx, "192.168.4.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = svc.Evaluate(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestIPRuleService_EvaluateStorageError(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &MockIPRuleRepository{
		ListEffectiveFunc: func(ctx context.Context, now time.Time) ([]models.IPRule, error) {
			return nil, boom
		},
	}
	svc := NewIPRuleService(repo, &StaticConfigProvider{}, newTestLogger())

	_, err := svc.Evaluate(context.Background(), "1.1.1.1")
	assert.ErrorIs(t, err, boom)
}

func TestValidPattern(t *testing.T) {
	assert.True(t, ValidPattern("10.0.0.1"))
	assert.True(t, ValidPattern("10.0.0.0/8"))
	assert.True(t, ValidPattern("0.0.0.0/0"))
	assert.False(t, ValidPattern("10.0.0.0/33"))
	assert.False(t, ValidPattern("::1"))
	assert.False(t, ValidPattern("example.com"))
}

func TestIPRuleService_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewIPRuleService(&MockIPRuleRepository{}, &StaticConfigProvider{}, newTestLogger())
	svc.now = func() time.Time { return now }

	created, err := svc.Create(ctx, &models.IPRule{RuleType: models.IPRuleBlacklist, IPPattern: "203.0.113.0/24", CreatedBy: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "rule-1", created.ID)

	_, err = svc.Create(ctx, &models.IPRule{RuleType: "greylist", IPPattern: "203.0.113.1"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Create(ctx, &models.IPRule{RuleType: models.IPRuleWhitelist, IPPattern: "203.0.113.0/40"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	past := now.Add(-time.Minute)
	_, err = svc.Create(ctx, &models.IPRule{RuleType: models.IPRuleWhitelist, IPPattern: "203.0.113.1", ExpiresAt: &past})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
