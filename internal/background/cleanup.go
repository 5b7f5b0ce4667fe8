package background

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/services"
)

// SessionExpirer deactivates sessions past their absolute or idle deadline
type SessionExpirer interface {
	ExpireStale(ctx context.Context, now, idleCutoff time.Time) (int64, error)
}

// AttemptPruner deletes old login attempts
type AttemptPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttemptPruners applies one retention cutoff to several attempt logs.
// Every pruner runs; errors are joined.
type AttemptPruners []AttemptPruner

func (p AttemptPruners) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	var errs []error
	for _, pruner := range p {
		n, err := pruner.DeleteOlderThan(ctx, cutoff)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// AuditPruner deletes audit entries past retention
type AuditPruner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// IPRuleExpirer deactivates ip rules whose expiry has passed
type IPRuleExpirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically sweeps expired security state. Request paths never
// depend on it: sessions, lockouts and rules are all checked against the clock at
// read time, so a missed sweep only delays storage reclamation.
type CleanupManager struct {
	sessions         SessionExpirer
	attempts         AttemptPruner
	audit            AuditPruner
	ipRules          IPRuleExpirer
	config           services.SecurityConfigProvider
	logger           *slog.Logger
	interval         time.Duration
	attemptRetention time.Duration
	now              func() time.Time
	stopCh           chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionExpirer,
	attempts AttemptPruner,
	audit AuditPruner,
	ipRules IPRuleExpirer,
	config services.SecurityConfigProvider,
	logger *slog.Logger,
	interval time.Duration,
	attemptRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:         sessions,
		attempts:         attempts,
		audit:            audit,
		ipRules:          ipRules,
		config:           config,
		logger:           logger,
		interval:         interval,
		attemptRetention: attemptRetention,
		now:              time.Now,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// CleanupResult counts rows touched by one sweep
type CleanupResult struct {
	SessionsExpired int64
	AttemptsDeleted int64
	AuditDeleted    int64
	RulesExpired    int64
}

// RunOnce performs a single sweep. Each step runs even if an earlier one failed.
func (cm *CleanupManager) RunOnce(ctx context.Context) CleanupResult {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var res CleanupResult
	now := cm.now()

	cfg, err := cm.config.Get(cleanupCtx)
	if err != nil {
		cm.logger.Error("cleanup skipped policy-dependent steps", slog.Any("error", err))
	}

	if cfg != nil {
		idleCutoff := now.Add(-time.Duration(cfg.SessionTimeoutMinutes) * time.Minute)
		if res.SessionsExpired, err = cm.sessions.ExpireStale(cleanupCtx, now, idleCutoff); err != nil {
			cm.logger.Error("failed to expire stale sessions", slog.Any("error", err))
		}

		if res.AuditDeleted, err = cm.audit.Cleanup(cleanupCtx, cfg.AuditLogRetentionDays); err != nil {
			cm.logger.Error("failed to cleanup audit logs", slog.Any("error", err))
		}
	}

	if cm.attemptRetention > 0 {
		if res.AttemptsDeleted, err = cm.attempts.DeleteOlderThan(cleanupCtx, now.Add(-cm.attemptRetention)); err != nil {
			cm.logger.Error("failed to delete old attempts", slog.Any("error", err))
		}
	}

	if res.RulesExpired, err = cm.ipRules.DeactivateExpired(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to deactivate expired ip rules", slog.Any("error", err))
	}

	if res != (CleanupResult{}) {
		cm.logger.Info("security cleanup completed",
			slog.Int64("sessions_expired", res.SessionsExpired),
			slog.Int64("attempts_deleted", res.AttemptsDeleted),
			slog.Int64("audit_deleted", res.AuditDeleted),
			slog.Int64("rules_expired", res.RulesExpired),
		)
	}
	return res
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
