package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
)

// TwoFactorRepository defines per-admin enrollment storage
type TwoFactorRepository interface {
	Get(ctx context.Context, adminID string) (*models.TwoFactorState, error)
	Upsert(ctx context.Context, st *models.TwoFactorState) error
	MarkVerified(ctx context.Context, adminID string, at time.Time) error
	Delete(ctx context.Context, adminID string) error
}

// TwoFactorAttemptRepository records code checks for throttling
type TwoFactorAttemptRepository interface {
	ReserveAttempt(ctx context.Context, attempt *models.TwoFactorAttempt, since time.Time) (int, error)
	ResolveAttempt(ctx context.Context, id string, success bool, failureReason *string) error
}

// TwoFactorLimits bounds failed code checks per admin within a sliding window
type TwoFactorLimits struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultTwoFactorLimits allows five wrong codes per fifteen minutes
var DefaultTwoFactorLimits = TwoFactorLimits{MaxFailures: 5, Window: 15 * time.Minute}

const (
	twoFactorReasonPending     = "pending"
	twoFactorReasonInvalidCode = "invalid_code"
	twoFactorReasonRateLimited = "rate_limited"
)

// TOTPProvider generates and checks TOTP secrets
type TOTPProvider interface {
	Enroll(accountEmail string) (*auth.TOTPEnrollment, error)
	VerifyEncrypted(encrypted, nonce []byte, code string, now time.Time) (bool, error)
}

// TwoFactorService resolves 2FA policy and manages TOTP enrollment
type TwoFactorService struct {
	repo     TwoFactorRepository
	attempts TwoFactorAttemptRepository
	totp     TOTPProvider
	config   SecurityConfigProvider
	limits   TwoFactorLimits
	logger   *slog.Logger
	now      func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService. Zero limits fall back to DefaultTwoFactorLimits.
func NewTwoFactorService(repo TwoFactorRepository, attempts TwoFactorAttemptRepository, totp TOTPProvider, config SecurityConfigProvider, limits TwoFactorLimits, logger *slog.Logger) *TwoFactorService {
	if limits.MaxFailures <= 0 {
		limits.MaxFailures = DefaultTwoFactorLimits.MaxFailures
	}
	if limits.Window <= 0 {
		limits.Window = DefaultTwoFactorLimits.Window
	}
	return &TwoFactorService{
		repo:     repo,
		attempts: attempts,
		totp:     totp,
		config:   config,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve returns whether 2FA is required for the admin and their enrollment state.
// SUPER_ADMIN is forced to required when require2FAForSuperAdmin is set, regardless of require2FA.
func (s *TwoFactorService) Resolve(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.TwoFactorStatus{Required: cfg.Require2FA}
	if role == models.RoleSuperAdmin && cfg.Require2FAForSuperAdmin {
		status.Required = true
	}

	st, err := s.repo.Get(ctx, adminID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return status, nil
	case err != nil:
		return nil, fmt.Errorf("load two-factor state: %w", err)
	}

	status.Enabled = st.IsEnabled
	status.Verified = st.IsVerified
	return status, nil
}

// BeginSetup generates a new secret for the admin. Enrollment is enabled but unverified
// until Verify succeeds. A verified enrollment must be disabled before re-enrolling.
func (s *TwoFactorService) BeginSetup(ctx context.Context, adminID, email string) (*auth.TOTPEnrollment, error) {
	existing, err := s.repo.Get(ctx, adminID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load two-factor state: %w", err)
	}
	if existing != nil && existing.IsVerified {
		return nil, fmt.Errorf("two-factor already verified: %w", models.ErrConflict)
	}

	enrollment, err := s.totp.Enroll(email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.Upsert(ctx, &models.TwoFactorState{
		AdminID:         adminID,
		SecretEncrypted: enrollment.EncryptedSecret,
		SecretNonce:     enrollment.Nonce,
		IsEnabled:       true,
		IsVerified:      false,
		EnabledAt:       &now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "two-factor setup started", slog.String("admin_id", adminID))
	return enrollment, nil
}

// checkCode validates code against the stored secret. Every check is recorded and
// counted before the code is compared, so past MaxFailures in the window even the
// correct code is refused.
func (s *TwoFactorService) checkCode(ctx context.Context, adminID, purpose, code string) error {
	st, err := s.repo.Get(ctx, adminID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnrolled
		}
		return fmt.Errorf("load two-factor state: %w", err)
	}

	now := s.now()
	pending := twoFactorReasonPending
	attempt := &models.TwoFactorAttempt{
		AdminID:       adminID,
		Purpose:       purpose,
		FailureReason: &pending,
		AttemptedAt:   now,
	}
	failures, err := s.attempts.ReserveAttempt(ctx, attempt, now.Add(-s.limits.Window))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSecurityUnavailable, err)
	}

	if failures > s.limits.MaxFailures {
		s.resolveAttempt(ctx, attempt.ID, false, twoFactorReasonRateLimited)
		s.logger.WarnContext(ctx, "two-factor attempts exceeded",
			slog.String("admin_id", adminID),
			slog.String("purpose", purpose),
			slog.Int("failures", failures),
		)
		return models.ErrTwoFactorRateLimited
	}

	ok, err := s.totp.VerifyEncrypted(st.SecretEncrypted, st.SecretNonce, code, now)
	if err != nil {
		s.logger.WarnContext(ctx, "two-factor code check failed",
			slog.String("admin_id", adminID),
			slog.Any("error", err),
		)
	}
	if err != nil || !ok {
		s.resolveAttempt(ctx, attempt.ID, false, twoFactorReasonInvalidCode)
		return models.ErrTwoFactorInvalidCode
	}

	s.resolveAttempt(ctx, attempt.ID, true, "")
	return nil
}

// resolveAttempt stores the outcome of a reserved attempt. On error the reservation
// stays a failure.
func (s *TwoFactorService) resolveAttempt(ctx context.Context, id string, success bool, reason string) {
	var failureReason *string
	if !success {
		failureReason = &reason
	}
	if err := s.attempts.ResolveAttempt(ctx, id, success, failureReason); err != nil {
		s.logger.WarnContext(ctx, "failed to store two-factor attempt outcome",
			slog.String("attempt_id", id),
			slog.Any("error", err),
		)
	}
}

// Verify confirms enrollment with a valid code
func (s *TwoFactorService) Verify(ctx context.Context, adminID, code string) error {
	if err := s.checkCode(ctx, adminID, models.TwoFactorPurposeVerify, code); err != nil {
		return err
	}
	if err := s.repo.MarkVerified(ctx, adminID, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnrolled
		}
		return err
	}

	s.logger.InfoContext(ctx, "two-factor verified", slog.String("admin_id", adminID))
	return nil
}

// Disable removes the enrollment after checking a current code
func (s *TwoFactorService) Disable(ctx context.Context, adminID, code string) error {
	if err := s.checkCode(ctx, adminID, models.TwoFactorPurposeDisable, code); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, adminID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnrolled
		}
		return err
	}

	s.logger.WarnContext(ctx, "two-factor disabled", slog.String("admin_id", adminID))
	return nil
}
