package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// LoginAttemptRepository defines the attempt log used by LockoutService
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, trigger *models.LockoutTrigger) (*models.AccountLockout, error)
	ListRecent(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// LockoutRepository defines lockout storage used by LockoutService
type LockoutRepository interface {
	FindActive(ctx context.Context, email, ip string, now time.Time) ([]*models.AccountLockout, error)
	Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error)
	Unlock(ctx context.Context, id, unlockedBy string, now time.Time) (*models.AccountLockout, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.AccountLockout, error)
}

const lockoutAlertTimeout = 10 * time.Second

// LockoutService tracks login attempts and the lockouts they trigger
type LockoutService struct {
	attempts LoginAttemptRepository
	lockouts LockoutRepository
	config   SecurityConfigProvider
	alerter  SecurityAlerter
	logger   *slog.Logger
	now      func() time.Time

	alerts       sync.WaitGroup
	alertTimeout time.Duration
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(attempts LoginAttemptRepository, lockouts LockoutRepository, config SecurityConfigProvider, alerter SecurityAlerter, logger *slog.Logger) *LockoutService {
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	return &LockoutService{
		attempts:     attempts,
		lockouts:     lockouts,
		config:       config,
		alerter:      alerter,
		logger:       logger,
		now:          time.Now,
		alertTimeout: lockoutAlertTimeout,
	}
}

// NormalizeEmail is the canonical form used as the lockout key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckLockout reports whether authentication for email from ip is currently denied.
// An email or account lockout is reported before an ip lockout.
func (s *LockoutService) CheckLockout(ctx context.Context, email, ip string) (*models.LockoutStatus, error) {
	active, err := s.lockouts.FindActive(ctx, NormalizeEmail(email), ip, s.now())
	if err != nil {
		return nil, fmt.Errorf("check lockout: %w", err)
	}

	var chosen *models.AccountLockout
	for _, l := range active {
		if l.LockoutType != models.LockoutTypeIP {
			chosen = l
			break
		}
		if chosen == nil {
			chosen = l
		}
	}

	if chosen == nil {
		return &models.LockoutStatus{Locked: false}, nil
	}

	expiresAt := chosen.ExpiresAt
	return &models.LockoutStatus{
		Locked:    true,
		Reason:    chosen.Reason,
		ExpiresAt: &expiresAt,
		Lockout:   chosen,
	}, nil
}

// RecordAttempt appends an attempt. A failure may create an email lockout, which is returned.
func (s *LockoutService) RecordAttempt(ctx context.Context, email, ip, userAgent string, success bool, failureReason *string) (*models.AccountLockout, error) {
	now := s.now()
	attempt := &models.LoginAttempt{
		Email:         NormalizeEmail(email),
		IPAddress:     ip,
		UserAgent:     models.TruncateUserAgent(userAgent),
		Success:       success,
		FailureReason: failureReason,
		AttemptedAt:   now,
	}

	var trigger *models.LockoutTrigger
	if !success {
		cfg, err := s.config.Get(ctx)
		if err != nil {
			return nil, err
		}
		trigger = models.NewLockoutTrigger(now, cfg.MaxLoginAttempts, cfg.LockoutDuration())
	}

	lockout, err := s.attempts.RecordAttempt(ctx, attempt, trigger)
	if err != nil {
		return nil, fmt.Errorf("record login attempt: %w", err)
	}

	if lockout != nil {
		s.logger.WarnContext(ctx, "account locked",
			slog.String("email", logger.SanitizedEmail(attempt.Email)),
			slog.String("ip_address", ip),
			slog.Int("failed_attempts", lockout.FailedAttempts),
			slog.Time("expires_at", lockout.ExpiresAt),
		)
		s.notify(ctx, lockout)
	}

	return lockout, nil
}

// Unlock releases a lockout early. History is kept.
func (s *LockoutService) Unlock(ctx context.Context, lockoutID, unlockedBy string) (*models.AccountLockout, error) {
	l, err := s.lockouts.Unlock(ctx, lockoutID, unlockedBy, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "lockout released",
		slog.String("lockout_id", lockoutID),
		slog.String("unlocked_by", unlockedBy),
	)
	return l, nil
}

// LockIP creates a manual ip lockout
func (s *LockoutService) LockIP(ctx context.Context, ip, reason string, duration time.Duration, lockedBy string) (*models.AccountLockout, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("invalid ip address %q: %w", ip, models.ErrBadRequest)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("lockout duration must be positive: %w", models.ErrBadRequest)
	}
	if reason == "" {
		reason = "Manual lockout by " + lockedBy
	}

	l, err := s.lockouts.Create(ctx, &models.AccountLockout{
		LockoutType: models.LockoutTypeIP,
		IPAddress:   &ip,
		Reason:      reason,
		ExpiresAt:   s.now().Add(duration),
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "ip locked",
		slog.String("ip_address", ip),
		slog.String("locked_by", lockedBy),
		slog.Time("expires_at", l.ExpiresAt),
	)
	s.notify(ctx, l)
	return l, nil
}

// notify sends the lockout alert in the background, bounded by alertTimeout
func (s *LockoutService) notify(ctx context.Context, l *models.AccountLockout) {
	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.alertTimeout)
		defer cancel()
		s.alerter.NotifyLockout(alertCtx, l)
	}()
}

// WaitForAlerts blocks until in-flight lockout alerts have finished
func (s *LockoutService) WaitForAlerts() {
	s.alerts.Wait()
}

// ListActive returns every lockout in force
func (s *LockoutService) ListActive(ctx context.Context) ([]*models.AccountLockout, error) {
	return s.lockouts.ListActive(ctx, s.now())
}

// RecentAttempts returns the latest attempts recorded for email
func (s *LockoutService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.attempts.ListRecent(ctx, NormalizeEmail(email), limit)
}
