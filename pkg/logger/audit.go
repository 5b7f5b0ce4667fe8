package logger

import (
	"context"
	"log/slog"
)

// AuditEvent is the structured form of an administrative action written to the log stream
type AuditEvent struct {
	Action        string
	Category      string
	RiskLevel     string
	ActorID       string
	ActorEmail    string
	ActorRole     string
	SessionID     string
	Resource      string
	ResourceID    string
	IPAddress     string
	UserAgent     string
	CorrelationID string
	Metadata      map[string]any
}

// AuditLogger writes audit events as slog records
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAdminAction writes one audit record. High-risk actions are logged at warn level.
func (al *AuditLogger) LogAdminAction(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", event.Category),
		slog.String("action", event.Action),
		slog.String("risk_level", event.RiskLevel),
		slog.String("actor_id", event.ActorID),
	}

	if event.ActorEmail != "" {
		attrs = append(attrs, slog.String("actor_email", SanitizedEmail(event.ActorEmail)))
	}
	if event.ActorRole != "" {
		attrs = append(attrs, slog.String("actor_role", event.ActorRole))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", event.CorrelationID))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	level := slog.LevelInfo
	if event.RiskLevel == "high" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
