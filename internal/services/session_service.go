package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
)

// SessionRepository defines admin session storage
type SessionRepository interface {
	Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error)
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error)
	GetByID(ctx context.Context, id string) (*models.AdminSession, error)
	Touch(ctx context.Context, tokenHash string, now time.Time) error
	Terminate(ctx context.Context, id, reason string, now time.Time) (bool, error)
	TerminateAll(ctx context.Context, adminID, reason, exceptID string, now time.Time) (int64, error)
	ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error)
}

// SessionService manages admin sessions under an absolute and an inactivity timeout
type SessionService struct {
	repo   SessionRepository
	config SecurityConfigProvider
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, config SecurityConfigProvider, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Issue generates an opaque token, creates its session and returns the raw token.
// The raw token is never stored.
func (s *SessionService) Issue(ctx context.Context, adminID, ip, userAgent string, deviceInfo map[string]any) (string, *models.AdminSession, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	session, err := s.Create(ctx, adminID, auth.HashToken(token), ip, userAgent, deviceInfo)
	if err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// Create inserts an active session expiring sessionAbsoluteTimeoutHours from now
func (s *SessionService) Create(ctx context.Context, adminID, tokenHash, ip, userAgent string, deviceInfo map[string]any) (*models.AdminSession, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session, err := s.repo.Create(ctx, &models.AdminSession{
		AdminID:        adminID,
		TokenHash:      tokenHash,
		IPAddress:      ip,
		UserAgent:      models.TruncateUserAgent(userAgent),
		DeviceInfo:     deviceInfo,
		CreatedAt:      now,
		ExpiresAt:      now.Add(cfg.AbsoluteTimeout()),
		LastActivityAt: now,
		IsActive:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created",
		slog.String("session_id", session.ID),
		slog.String("admin_id", adminID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Validate checks the session behind tokenHash. The absolute expiry is checked
// before inactivity, so a session that is both reports "expired". An invalid
// session found active is terminated with the matching reason.
func (s *SessionService) Validate(ctx context.Context, tokenHash string) (*models.SessionValidation, error) {
	session, err := s.repo.GetActiveByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.SessionValidation{Valid: false, Reason: "not found"}, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reason := ""
	switch {
	case session.ExpiresAt.Before(now):
		reason = models.TerminationExpired
	case now.After(session.LastActivityAt.Add(cfg.InactivityTimeout())):
		reason = models.TerminationInactivityTimeout
	}

	if reason == "" {
		return &models.SessionValidation{Valid: true, Session: session}, nil
	}

	if _, err := s.repo.Terminate(ctx, session.ID, reason, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to terminate timed out session",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
	return &models.SessionValidation{Valid: false, Reason: reason, Session: session}, nil
}

// Touch records activity on the session
func (s *SessionService) Touch(ctx context.Context, tokenHash string) error {
	return s.repo.Touch(ctx, tokenHash, s.now())
}

// Terminate ends one session. Terminating an inactive session is a no-op reported as false.
func (s *SessionService) Terminate(ctx context.Context, sessionID, reason string) (bool, error) {
	terminated, err := s.repo.Terminate(ctx, sessionID, reason, s.now())
	if err != nil {
		return false, err
	}
	if terminated {
		s.logger.InfoContext(ctx, "session terminated",
			slog.String("session_id", sessionID),
			slog.String("reason", reason),
		)
	}
	return terminated, nil
}

// TerminateOwned ends a session only if it belongs to adminID
func (s *SessionService) TerminateOwned(ctx context.Context, adminID, sessionID, reason string) (bool, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.AdminID != adminID {
		return false, models.ErrNotFound
	}
	return s.Terminate(ctx, sessionID, reason)
}

// TerminateAll ends every active session of adminID except exceptSessionID (if set)
func (s *SessionService) TerminateAll(ctx context.Context, adminID, reason, exceptSessionID string) (int64, error) {
	count, err := s.repo.TerminateAll(ctx, adminID, reason, exceptSessionID, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "sessions terminated",
		slog.String("admin_id", adminID),
		slog.String("reason", reason),
		slog.Int64("count", count),
	)
	return count, nil
}

// ListActive returns the admin's active sessions
func (s *SessionService) ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	return s.repo.ListActive(ctx, adminID)
}
