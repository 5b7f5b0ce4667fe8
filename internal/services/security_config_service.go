package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSecurityConfigTTL bounds how long a loaded config is served from memory
	DefaultSecurityConfigTTL = 60 * time.Second

	securityConfigLoadTimeout = 5 * time.Second
	securityConfigKey         = "security_config"
)

// SecurityConfigRepository defines the storage used by SecurityConfigService
type SecurityConfigRepository interface {
	Latest(ctx context.Context) (*repositories.StoredSecurityConfig, error)
	Insert(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*repositories.StoredSecurityConfig, error)
}

// SecurityConfigProvider is the read side used by gates and other services
type SecurityConfigProvider interface {
	Get(ctx context.Context) (*models.SecurityConfig, error)
}

// SecurityConfigService serves the merged defaults+overrides policy from a TTL cache.
// A cached value older than ttl is never returned; concurrent reloads are coalesced.
type SecurityConfigService struct {
	repo        SecurityConfigRepository
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.RWMutex
	cached     *models.SecurityConfig
	overrides  models.SecurityConfigOverrides
	loadedAt   time.Time
	generation uint64

	group singleflight.Group
}

// NewSecurityConfigService creates a new SecurityConfigService
func NewSecurityConfigService(repo SecurityConfigRepository, ttl time.Duration, logger *slog.Logger) *SecurityConfigService {
	if ttl <= 0 {
		ttl = DefaultSecurityConfigTTL
	}
	return &SecurityConfigService{
		repo:        repo,
		ttl:         ttl,
		loadTimeout: securityConfigLoadTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns the current policy. The returned value is a copy owned by the caller.
func (s *SecurityConfigService) Get(ctx context.Context) (*models.SecurityConfig, error) {
	s.mu.RLock()
	cfg, loadedAt := s.cached, s.loadedAt
	s.mu.RUnlock()

	if cfg != nil && s.now().Sub(loadedAt) < s.ttl {
		return cfg.Merge(nil), nil
	}

	// The shared load outlives any single caller; each caller stops waiting on its own ctx.
	ch := s.group.DoChan(securityConfigKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SecurityConfig).Merge(nil), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load security config: %w", ctx.Err())
	}
}

func (s *SecurityConfigService) load(ctx context.Context) (*models.SecurityConfig, error) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	// Load stamps the start time so the TTL covers the read itself.
	started := s.now()

	stored, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load security config: %w", err)
	}

	cfg := models.DefaultSecurityConfig()
	var overrides models.SecurityConfigOverrides
	if stored != nil {
		merged := cfg.Merge(&stored.Overrides)
		if err := merged.Validate(); err != nil {
			s.logger.Error("stored security config is invalid, serving defaults",
				slog.Int64("version", stored.Version),
				slog.Any("error", err),
			)
		} else {
			cfg = merged
			overrides = stored.Overrides
		}
		cfg.Version = stored.Version
		cfg.UpdatedBy = stored.UpdatedBy
		cfg.UpdatedAt = stored.CreatedAt
	}

	s.mu.Lock()
	if s.generation == gen {
		s.cached = cfg
		s.overrides = overrides
		s.loadedAt = started
	}
	s.mu.Unlock()

	return cfg, nil
}

// Invalidate drops the cached value so the next Get reloads from storage
func (s *SecurityConfigService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.generation++
	s.mu.Unlock()
	s.group.Forget(securityConfigKey)
}

// Update layers overrides over the currently stored overrides, validates the result,
// stores it as a new version and invalidates the cache. It returns the previous and
// new effective configs so callers can audit the change.
func (s *SecurityConfigService) Update(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*models.SecurityConfig, *models.SecurityConfig, error) {
	if overrides == nil {
		return nil, nil, fmt.Errorf("no overrides supplied: %w", models.ErrBadRequest)
	}

	previous, err := s.Get(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	combined := mergeOverrides(s.overrides, *overrides)
	s.mu.RUnlock()

	candidate := models.DefaultSecurityConfig().Merge(&combined)
	if err := candidate.Validate(); err != nil {
		return nil, nil, err
	}

	stored, err := s.repo.Insert(ctx, &combined, updatedBy)
	if err != nil {
		return nil, nil, fmt.Errorf("store security config: %w", err)
	}
	s.Invalidate()

	s.logger.Info("security config updated",
		slog.Int64("version", stored.Version),
		slog.String("updated_by", updatedBy),
	)

	candidate.Version = stored.Version
	candidate.UpdatedBy = updatedBy
	candidate.UpdatedAt = stored.CreatedAt
	return previous, candidate, nil
}

// mergeOverrides returns base with every non-nil field of next applied
func mergeOverrides(base, next models.SecurityConfigOverrides) models.SecurityConfigOverrides {
	out := base
	if next.MaxLoginAttempts != nil {
		out.MaxLoginAttempts = next.MaxLoginAttempts
	}
	if next.LockoutDurationMinutes != nil {
		out.LockoutDurationMinutes = next.LockoutDurationMinutes
	}
	if next.SessionTimeoutMinutes != nil {
		out.SessionTimeoutMinutes = next.SessionTimeoutMinutes
	}
	if next.SessionAbsoluteTimeoutHours != nil {
		out.SessionAbsoluteTimeoutHours = next.SessionAbsoluteTimeoutHours
	}
	if next.RequireIPWhitelist != nil {
		out.RequireIPWhitelist = next.RequireIPWhitelist
	}
	if next.Require2FA != nil {
		out.Require2FA = next.Require2FA
	}
	if next.Require2FAForSuperAdmin != nil {
		out.Require2FAForSuperAdmin = next.Require2FAForSuperAdmin
	}
	if next.PasswordExpiryDays != nil {
		out.PasswordExpiryDays = next.PasswordExpiryDays
	}
	if next.MinPasswordLength != nil {
		out.MinPasswordLength = next.MinPasswordLength
	}
	if next.AuditLogRetentionDays != nil {
		out.AuditLogRetentionDays = next.AuditLogRetentionDays
	}
	if next.HighRiskActions != nil {
		out.HighRiskActions = next.HighRiskActions
	}
	return out
}
