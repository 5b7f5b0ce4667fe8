package services

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	auditPersistTimeout  = 5 * time.Second
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// AuditLogRepository defines audit storage
type AuditLogRepository interface {
	Create(ctx context.Context, e *models.AuditLogEntry) error
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
	Count(ctx context.Context, f models.AuditFilter) (int64, error)
}

// AuditRecorder is implemented by AuditService and consumed by handlers
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLogEntry)
}

// AuditStats exposes audit pipeline counters
type AuditStats struct {
	Persisted  uint64 `json:"persisted"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
	QueueDepth int    `json:"queue_depth"`
}

// ClassifyRisk maps an action to a risk tier: configured high-risk actions are high,
// actions mentioning delete or terminate are medium, everything else is low
func ClassifyRisk(action string, highRiskActions []string) models.RiskLevel {
	if slices.Contains(highRiskActions, action) {
		return models.RiskHigh
	}
	if strings.Contains(action, "delete") || strings.Contains(action, "terminate") {
		return models.RiskMedium
	}
	return models.RiskLow
}

type auditItem struct {
	ctx   context.Context
	entry *models.AuditLogEntry
}

// AuditService classifies and records administrative actions. Every entry is written
// to the log stream immediately and persisted asynchronously; Record never fails the caller.
type AuditService struct {
	repo        AuditLogRepository
	config      SecurityConfigProvider
	alerter     SecurityAlerter
	auditLogger *logger.AuditLogger
	logger      *slog.Logger
	now         func() time.Time

	queue  chan auditItem
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	persisted atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewAuditService creates a new AuditService with a bounded persistence queue
func NewAuditService(repo AuditLogRepository, config SecurityConfigProvider, alerter SecurityAlerter, queueSize int, log *slog.Logger) *AuditService {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	return &AuditService{
		repo:        repo,
		config:      config,
		alerter:     alerter,
		auditLogger: logger.NewAuditLogger(log),
		logger:      log,
		now:         time.Now,
		queue:       make(chan auditItem, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Record classifies entry, logs it and queues it for persistence
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLogEntry) {
	highRisk := models.DefaultSecurityConfig().HighRiskActions
	if cfg, err := s.config.Get(ctx); err == nil {
		highRisk = cfg.HighRiskActions
	} else {
		s.logger.WarnContext(ctx, "audit using default high-risk actions", slog.Any("error", err))
	}

	entry.RiskLevel = ClassifyRisk(entry.Action, highRisk)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.CorrelationID == nil {
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			entry.CorrelationID = &reqID
		}
	}

	s.auditLogger.LogAdminAction(ctx, toAuditEvent(entry))

	select {
	case s.queue <- auditItem{ctx: context.WithoutCancel(ctx), entry: entry}:
	default:
		s.dropped.Add(1)
		s.logger.ErrorContext(ctx, "audit queue full, entry dropped",
			slog.String("action", entry.Action),
			slog.String("actor_id", entry.ActorID),
		)
	}
}

func toAuditEvent(e *models.AuditLogEntry) logger.AuditEvent {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return logger.AuditEvent{
		Action:        e.Action,
		Category:      string(e.Category),
		RiskLevel:     string(e.RiskLevel),
		ActorID:       e.ActorID,
		ActorEmail:    e.ActorEmail,
		ActorRole:     e.ActorRole,
		SessionID:     deref(e.SessionID),
		Resource:      e.Resource,
		ResourceID:    deref(e.ResourceID),
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		CorrelationID: deref(e.CorrelationID),
		Metadata:      e.Metadata,
	}
}

// Start runs the persistence worker until ctx is done or Stop is called
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case item := <-s.queue:
				s.persist(item)
			case <-ctx.Done():
				s.drain()
				return
			case <-s.stopCh:
				s.drain()
				return
			}
		}
	}()
	s.logger.Info("audit worker started", slog.Int("queue_size", cap(s.queue)))
}

// Stop flushes queued entries and waits for the worker to exit
func (s *AuditService) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("audit worker stopped", slog.Any("stats", s.Stats()))
}

func (s *AuditService) drain() {
	for {
		select {
		case item := <-s.queue:
			s.persist(item)
		default:
			return
		}
	}
}

func (s *AuditService) persist(item auditItem) {
	ctx, cancel := context.WithTimeout(item.ctx, auditPersistTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, item.entry); err != nil {
		s.failed.Add(1)
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("action", item.entry.Action),
			slog.String("actor_id", item.entry.ActorID),
			slog.Any("error", err),
		)
	} else {
		s.persisted.Add(1)
	}

	if item.entry.RiskLevel == models.RiskHigh {
		s.alerter.NotifyHighRiskAction(ctx, item.entry)
	}
}

// Stats returns the pipeline counters
func (s *AuditService) Stats() AuditStats {
	return AuditStats{
		Persisted:  s.persisted.Load(),
		Failed:     s.failed.Load(),
		Dropped:    s.dropped.Load(),
		QueueDepth: len(s.queue),
	}
}

// List returns a page of audit entries and the total matching count
func (s *AuditService) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, int64, error) {
	if f.Limit <= 0 {
		f.Limit = defaultAuditPageSize
	}
	if f.Limit > maxAuditPageSize {
		f.Limit = maxAuditPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	entries, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
