package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fixedClock returns a settable clock for services with a now field
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// StaticConfigProvider serves a fixed SecurityConfig
type StaticConfigProvider struct {
	Config *models.SecurityConfig
	Err    error
}

func (p *StaticConfigProvider) Get(ctx context.Context) (*models.SecurityConfig, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Config == nil {
		return models.DefaultSecurityConfig(), nil
	}
	return p.Config.Merge(nil), nil
}

// MockSecurityConfigRepository implements SecurityConfigRepository for testing
type MockSecurityConfigRepository struct {
	LatestFunc func(ctx context.Context) (*repositories.StoredSecurityConfig, error)
	InsertFunc func(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*repositories.StoredSecurityConfig, error)
}

func (m *MockSecurityConfigRepository) Latest(ctx context.Context) (*repositories.StoredSecurityConfig, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx)
	}
	return nil, nil
}

func (m *MockSecurityConfigRepository) Insert(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*repositories.StoredSecurityConfig, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, overrides, updatedBy)
	}
	return nil, models.ErrInternalServer
}

// MockIPRuleRepository implements IPRuleRepository for testing
type MockIPRuleRepository struct {
	CreateFunc        func(ctx context.Context, rule *models.IPRule) (*models.IPRule, error)
	ListEffectiveFunc func(ctx context.Context, now time.Time) ([]models.IPRule, error)
	DeactivateFunc    func(ctx context.Context, id string) (*models.IPRule, error)
}

func (m *MockIPRuleRepository) Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rule)
	}
	created := *rule
	created.ID = "rule-1"
	created.IsActive = true
	return &created, nil
}

func (m *MockIPRuleRepository) ListEffective(ctx context.Context, now time.Time) ([]models.IPRule, error) {
	if m.ListEffectiveFunc != nil {
		return m.ListEffectiveFunc(ctx, now)
	}
	return []models.IPRule{}, nil
}

func (m *MockIPRuleRepository) Deactivate(ctx context.Context, id string) (*models.IPRule, error) {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// FakeLockoutStore is an in-memory LoginAttemptRepository + LockoutRepository.
// RecordAttempt holds one mutex for the whole insert/count/lock sequence, mirroring
// the per-email serialization of the Postgres implementation.
type FakeLockoutStore struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
	lockouts []*models.AccountLockout
	seq      int

	RecordErr error
	FindErr   error
}

func (f *FakeLockoutStore) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *FakeLockoutStore) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, trigger *models.LockoutTrigger) (*models.AccountLockout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RecordErr != nil {
		return nil, f.RecordErr
	}

	a := *attempt
	a.ID = f.nextID("attempt")
	f.attempts = append(f.attempts, &a)

	if trigger == nil {
		return nil, nil
	}

	failures := 0
	for _, x := range f.attempts {
		if x.Email == attempt.Email && !x.Success && !x.AttemptedAt.Before(trigger.Since) {
			failures++
		}
	}
	if !trigger.Breached(failures) {
		return nil, nil
	}

	for _, l := range f.lockouts {
		if l.LockoutType == models.LockoutTypeEmail && l.Email != nil && *l.Email == attempt.Email && l.IsActive(attempt.AttemptedAt) {
			return nil, nil
		}
	}

	email := attempt.Email
	l := &models.AccountLockout{
		ID:             f.nextID("lockout"),
		LockoutType:    models.LockoutTypeEmail,
		Email:          &email,
		Reason:         trigger.Reason,
		FailedAttempts: failures,
		CreatedAt:      attempt.AttemptedAt,
		ExpiresAt:      trigger.ExpiresAt,
	}
	f.lockouts = append(f.lockouts, l)
	return l, nil
}

func (f *FakeLockoutStore) ListRecent(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.LoginAttempt, 0)
	for i := len(f.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if f.attempts[i].Email == email {
			out = append(out, f.attempts[i])
		}
	}
	return out, nil
}

func (f *FakeLockoutStore) FindActive(ctx context.Context, email, ip string, now time.Time) ([]*models.AccountLockout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FindErr != nil {
		return nil, f.FindErr
	}

	out := make([]*models.AccountLockout, 0)
	for _, l := range f.lockouts {
		if !l.IsActive(now) {
			continue
		}
		switch l.LockoutType {
		case models.LockoutTypeEmail, models.LockoutTypeAccount:
			if l.Email != nil && *l.Email == email {
				out = append(out, l)
			}
		case models.LockoutTypeIP:
			if l.IPAddress != nil && *l.IPAddress == ip {
				out = append(out, l)
			}
		}
	}
	// creation order is kept so precedence has to come from the service
	return out, nil
}

func (f *FakeLockoutStore) Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	created := *l
	created.ID = f.nextID("lockout")
	f.lockouts = append(f.lockouts, &created)
	return &created, nil
}

func (f *FakeLockoutStore) Unlock(ctx context.Context, id, unlockedBy string, now time.Time) (*models.AccountLockout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.lockouts {
		if l.ID == id && l.IsActive(now) {
			l.UnlockedAt = &now
			l.UnlockedBy = &unlockedBy
			return l, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *FakeLockoutStore) ListActive(ctx context.Context, now time.Time) ([]*models.AccountLockout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.AccountLockout, 0)
	for _, l := range f.lockouts {
		if l.IsActive(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// AllLockouts returns every lockout row, active or not
func (f *FakeLockoutStore) AllLockouts() []*models.AccountLockout {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.AccountLockout(nil), f.lockouts...)
}

// AllAttempts returns every attempt row
func (f *FakeLockoutStore) AllAttempts() []*models.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.LoginAttempt(nil), f.attempts...)
}

// FakeSessionStore is an in-memory SessionRepository
type FakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AdminSession
	seq      int

	GetErr error
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{sessions: make(map[string]*models.AdminSession)}
}

func (f *FakeSessionStore) Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	created := *s
	created.ID = "session-" + strconv.Itoa(f.seq)
	f.sessions[created.ID] = &created
	out := created
	return &out, nil
}

func (f *FakeSessionStore) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash && s.IsActive {
			out := *s
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *FakeSessionStore) GetByID(ctx context.Context, id string) (*models.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (f *FakeSessionStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.TokenHash == tokenHash && s.IsActive {
			s.LastActivityAt = now
		}
	}
	return nil
}

func (f *FakeSessionStore) Terminate(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.TerminatedAt = &now
	s.TerminationReason = &reason
	return true, nil
}

func (f *FakeSessionStore) TerminateAll(ctx context.Context, adminID, reason, exceptID string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for id, s := range f.sessions {
		if s.AdminID == adminID && s.IsActive && id != exceptID {
			s.IsActive = false
			s.TerminatedAt = &now
			r := reason
			s.TerminationReason = &r
			n++
		}
	}
	return n, nil
}

func (f *FakeSessionStore) ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.AdminSession, 0)
	for _, s := range f.sessions {
		if s.AdminID == adminID && s.IsActive {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MockTwoFactorRepository implements TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	mu     sync.Mutex
	States map[string]*models.TwoFactorState
	GetErr error
}

func NewMockTwoFactorRepository() *MockTwoFactorRepository {
	return &MockTwoFactorRepository{States: make(map[string]*models.TwoFactorState)}
}

func (m *MockTwoFactorRepository) Get(ctx context.Context, adminID string) (*models.TwoFactorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	st, ok := m.States[adminID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *st
	return &c, nil
}

func (m *MockTwoFactorRepository) Upsert(ctx context.Context, st *models.TwoFactorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *st
	m.States[st.AdminID] = &c
	return nil
}

func (m *MockTwoFactorRepository) MarkVerified(ctx context.Context, adminID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.States[adminID]
	if !ok || !st.IsEnabled {
		return models.ErrNotFound
	}
	st.IsVerified = true
	st.VerifiedAt = &at
	return nil
}

func (m *MockTwoFactorRepository) Delete(ctx context.Context, adminID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.States[adminID]; !ok {
		return models.ErrNotFound
	}
	delete(m.States, adminID)
	return nil
}

// MockTwoFactorAttemptRepository keeps two-factor attempts in memory
type MockTwoFactorAttemptRepository struct {
	mu         sync.Mutex
	Attempts   []*models.TwoFactorAttempt
	ReserveErr error
}

func (m *MockTwoFactorAttemptRepository) ReserveAttempt(ctx context.Context, attempt *models.TwoFactorAttempt, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReserveErr != nil {
		return 0, m.ReserveErr
	}
	c := *attempt
	c.ID = "attempt-" + strconv.Itoa(len(m.Attempts)+1)
	c.Success = false
	attempt.ID = c.ID
	m.Attempts = append(m.Attempts, &c)

	failures := 0
	for _, a := range m.Attempts {
		if a.AdminID == attempt.AdminID && !a.Success && !a.AttemptedAt.Before(since) {
			failures++
		}
	}
	return failures, nil
}

func (m *MockTwoFactorAttemptRepository) ResolveAttempt(ctx context.Context, id string, success bool, failureReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Attempts {
		if a.ID == id {
			a.Success = success
			a.FailureReason = failureReason
			return nil
		}
	}
	return models.ErrNotFound
}

// Reasons returns the stored failure reasons in order, "" for successes
func (m *MockTwoFactorAttemptRepository) Reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Attempts))
	for _, a := range m.Attempts {
		if a.FailureReason == nil {
			out = append(out, "")
			continue
		}
		out = append(out, *a.FailureReason)
	}
	return out
}

// MockTOTPProvider implements TOTPProvider with a fixed valid code
type MockTOTPProvider struct {
	ValidCode string
	EnrollErr error
}

func (m *MockTOTPProvider) Enroll(accountEmail string) (*auth.TOTPEnrollment, error) {
	if m.EnrollErr != nil {
		return nil, m.EnrollErr
	}
	return &auth.TOTPEnrollment{
		EncryptedSecret: []byte("encrypted"),
		Nonce:           []byte("nonce"),
		Secret:          "SECRET",
		QRCodeDataURL:   "data:image/png;base64,AAAA",
	}, nil
}

func (m *MockTOTPProvider) VerifyEncrypted(encrypted, nonce []byte, code string, now time.Time) (bool, error) {
	return code == m.ValidCode, nil
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	mu        sync.Mutex
	Entries   []*models.AuditLogEntry
	CreateErr error
	ListFunc  func(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
	CountFunc func(ctx context.Context, f models.AuditFilter) (int64, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, e *models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Entries = append(m.Entries, e)
	return nil
}

func (m *MockAuditLogRepository) Stored() []*models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLogEntry(nil), m.Entries...)
}

func (m *MockAuditLogRepository) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*models.AuditLogEntry{}, nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context, f models.AuditFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, f)
	}
	return 0, nil
}

// RecordingAlerter captures alerts
type RecordingAlerter struct {
	mu        sync.Mutex
	Lockouts  []*models.AccountLockout
	HighRisks []*models.AuditLogEntry
	// Deadlines holds the context deadline seen by each NotifyLockout call
	Deadlines []time.Time
	// Block makes NotifyLockout wait for its context to end
	Block     bool
}

func (a *RecordingAlerter) NotifyLockout(ctx context.Context, l *models.AccountLockout) {
	if a.Block {
		<-ctx.Done()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Lockouts = append(a.Lockouts, l)
	deadline, _ := ctx.Deadline()
	a.Deadlines = append(a.Deadlines, deadline)
}

func (a *RecordingAlerter) NotifyHighRiskAction(ctx context.Context, e *models.AuditLogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.HighRisks = append(a.HighRisks, e)
}

func (a *RecordingAlerter) LockoutCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Lockouts)
}

func (a *RecordingAlerter) HighRiskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.HighRisks)
}

// RecordingAuditor implements AuditRecorder synchronously
type RecordingAuditor struct {
	mu      sync.Mutex
	Entries []*models.AuditLogEntry
}

func (r *RecordingAuditor) Record(ctx context.Context, e *models.AuditLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, e)
}

// MockAdminUserRepository implements AdminUserRepository for testing
type MockAdminUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.AdminUser, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.AdminUser, error)
}

func (m *MockAdminUserRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminUserRepository) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}
