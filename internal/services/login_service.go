package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// LockoutChecker is the part of LockoutService used by the login flow
type LockoutChecker interface {
	CheckLockout(ctx context.Context, email, ip string) (*models.LockoutStatus, error)
	RecordAttempt(ctx context.Context, email, ip, userAgent string, success bool, failureReason *string) (*models.AccountLockout, error)
}

// SessionIssuer creates sessions for authenticated admins
type SessionIssuer interface {
	Issue(ctx context.Context, adminID, ip, userAgent string, deviceInfo map[string]any) (string, *models.AdminSession, error)
}

// TwoFactorResolver resolves an admin's 2FA requirement
type TwoFactorResolver interface {
	Resolve(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error)
}

// FailureDelayer pads failed login responses
type FailureDelayer interface {
	WaitFrom(ctx context.Context, start time.Time)
}

// LockedError reports an active lockout; it unwraps to ErrAccountLocked
type LockedError struct {
	Status *models.LockoutStatus
}

func (e *LockedError) Error() string {
	return "account locked: " + e.Status.Reason
}

func (e *LockedError) Unwrap() error {
	return models.ErrAccountLocked
}

// LoginRequest carries the credentials and request metadata of a login
type LoginRequest struct {
	Email      string
	Password   string
	IPAddress  string
	UserAgent  string
	DeviceInfo map[string]any
}

// LoginResult is returned on successful login. Token is shown to the client once.
type LoginResult struct {
	Token           string
	Session         *models.AdminSession
	Admin           *models.AdminUser
	TwoFactor       *models.TwoFactorStatus
	PasswordExpired bool
}

// LoginService orchestrates the login flow: lockout gate, credential check,
// attempt recording, session creation and audit
type LoginService struct {
	lockouts  LockoutChecker
	authn     Authenticator
	sessions  SessionIssuer
	twoFactor TwoFactorResolver
	audit     AuditRecorder
	config    SecurityConfigProvider
	delay     FailureDelayer
	logger    *slog.Logger
	now       func() time.Time
}

// NewLoginService creates a new LoginService. delay may be nil.
func NewLoginService(
	lockouts LockoutChecker,
	authn Authenticator,
	sessions SessionIssuer,
	twoFactor TwoFactorResolver,
	audit AuditRecorder,
	config SecurityConfigProvider,
	delay FailureDelayer,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		lockouts:  lockouts,
		authn:     authn,
		sessions:  sessions,
		twoFactor: twoFactor,
		audit:     audit,
		config:    config,
		delay:     delay,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckLockout is the login lockout gate. A storage failure is reported as ErrSecurityUnavailable.
func (s *LoginService) CheckLockout(ctx context.Context, email, ip string) error {
	status, err := s.lockouts.CheckLockout(ctx, email, ip)
	if err != nil {
		s.logger.ErrorContext(ctx, "lockout check failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", models.ErrSecurityUnavailable, err)
	}
	if status.Locked {
		s.logger.InfoContext(ctx, "login denied: locked",
			slog.String("email", logger.SanitizedEmail(NormalizeEmail(email))),
			slog.String("ip_address", ip),
		)
		return &LockedError{Status: status}
	}
	return nil
}

// Login runs the full login flow
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := s.now()
	email := NormalizeEmail(req.Email)

	if err := s.CheckLockout(ctx, email, req.IPAddress); err != nil {
		return nil, err
	}

	admin, err := s.authn.Authenticate(ctx, email, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidCredentials) && !errors.Is(err, models.ErrAccountDisabled) {
			return nil, err
		}
		return nil, s.fail(ctx, start, email, req, err)
	}

	if _, err := s.lockouts.RecordAttempt(ctx, email, req.IPAddress, req.UserAgent, true, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to record successful login attempt", slog.Any("error", err))
	}

	token, session, err := s.sessions.Issue(ctx, admin.ID, req.IPAddress, req.UserAgent, req.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	result := &LoginResult{Token: token, Session: session, Admin: admin}

	if cfg, err := s.config.Get(ctx); err == nil {
		result.PasswordExpired = pkgauth.PasswordExpired(admin.PasswordChangedAt, cfg.PasswordExpiryDays, s.now())
	}

	if status, err := s.twoFactor.Resolve(ctx, admin.ID, admin.Role); err != nil {
		s.logger.WarnContext(ctx, "failed to resolve two-factor status at login", slog.Any("error", err))
	} else {
		result.TwoFactor = status
	}

	sessionID := session.ID
	s.audit.Record(ctx, &models.AuditLogEntry{
		ActorID:    admin.ID,
		ActorEmail: admin.Email,
		ActorRole:  admin.Role,
		SessionID:  &sessionID,
		Action:     models.AuditActionLogin,
		Category:   models.AuditCategoryAuth,
		Resource:   "session",
		ResourceID: &sessionID,
		IPAddress:  req.IPAddress,
		UserAgent:  models.TruncateUserAgent(req.UserAgent),
		Metadata:   models.AuditMetadata{"password_expired": result.PasswordExpired},
	})

	return result, nil
}

// fail records the failed attempt and returns the error the client should see
func (s *LoginService) fail(ctx context.Context, start time.Time, email string, req LoginRequest, cause error) error {
	reason := "invalid_credentials"
	if errors.Is(cause, models.ErrAccountDisabled) {
		reason = "account_disabled"
	}

	lockout, err := s.lockouts.RecordAttempt(ctx, email, req.IPAddress, req.UserAgent, false, &reason)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record failed login attempt", slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "login failed",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("ip_address", req.IPAddress),
		slog.String("reason", reason),
	)

	if s.delay != nil {
		s.delay.WaitFrom(ctx, start)
	}

	if lockout != nil {
		expiresAt := lockout.ExpiresAt
		return &LockedError{Status: &models.LockoutStatus{
			Locked:    true,
			Reason:    lockout.Reason,
			ExpiresAt: &expiresAt,
			Lockout:   lockout,
		}}
	}
	return models.ErrInvalidCredentials
}
