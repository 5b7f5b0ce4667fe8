package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SecurityAlerter notifies the security team out of band. Implementations must not
// block the caller for long and must not return errors into the request path.
type SecurityAlerter interface {
	NotifyLockout(ctx context.Context, lockout *models.AccountLockout)
	NotifyHighRiskAction(ctx context.Context, entry *models.AuditLogEntry)
}

// NoopAlerter is used when no alert recipients are configured
type NoopAlerter struct{}

func (NoopAlerter) NotifyLockout(context.Context, *models.AccountLockout)       {}
func (NoopAlerter) NotifyHighRiskAction(context.Context, *models.AuditLogEntry) {}

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter sends security alerts using AWS SES
type SESAlerter struct {
	client      SESClient
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESAlerter creates an alerter backed by the default AWS credential chain
func NewSESAlerter(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*SESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESAlerterWithClient(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

// NewSESAlerterWithClient creates an alerter around an existing SES client
func NewSESAlerterWithClient(client SESClient, fromAddress string, recipients []string, logger *slog.Logger) *SESAlerter {
	return &SESAlerter{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

// NotifyLockout reports a newly created lockout
func (a *SESAlerter) NotifyLockout(ctx context.Context, l *models.AccountLockout) {
	target := ""
	switch {
	case l.Email != nil:
		target = *l.Email
	case l.IPAddress != nil:
		target = *l.IPAddress
	}

	subject := fmt.Sprintf("[security] %s lockout: %s", l.LockoutType, target)
	body := fmt.Sprintf(`A %s lockout was created.

Target:          %s
Reason:          %s
Failed attempts: %d
Expires at:      %s
Lockout id:      %s
`, l.LockoutType, target, l.Reason, l.FailedAttempts, l.ExpiresAt.UTC().Format(time.RFC3339), l.ID)

	a.send(ctx, subject, body)
}

// NotifyHighRiskAction reports an audited high-risk action
func (a *SESAlerter) NotifyHighRiskAction(ctx context.Context, e *models.AuditLogEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "A high-risk administrative action was recorded.\n\n")
	fmt.Fprintf(&b, "Action:     %s\n", e.Action)
	fmt.Fprintf(&b, "Actor:      %s (%s)\n", e.ActorEmail, e.ActorID)
	fmt.Fprintf(&b, "Resource:   %s\n", e.Resource)
	if e.ResourceID != nil {
		fmt.Fprintf(&b, "ResourceID: %s\n", *e.ResourceID)
	}
	fmt.Fprintf(&b, "IP address: %s\n", e.IPAddress)
	fmt.Fprintf(&b, "At:         %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	if e.Reason != nil {
		fmt.Fprintf(&b, "Reason:     %s\n", *e.Reason)
	}

	a.send(ctx, "[security] high-risk action: "+e.Action, b.String())
}

func (a *SESAlerter) send(ctx context.Context, subject, body string) {
	input := &ses.SendEmailInput{
		Source: aws.String(a.fromAddress),
		Destination: &types.Destination{
			ToAddresses: a.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to send security alert via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return
	}

	a.logger.InfoContext(ctx, "security alert sent",
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))
}
