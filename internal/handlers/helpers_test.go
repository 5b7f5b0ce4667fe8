package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminID   = "6f1c1e34-8a51-4d4f-9a3e-0d6c9b0b1a01"
	testSessionID = "9b2d7c11-3f0e-4a52-8d5b-5e2f1c7a9b02"
	testOtherID   = "1d4e9f60-7b2a-4c1d-b3e8-4f0a6c2d8e03"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRequest creates an HTTP request with a JSON body
func newTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withPrincipal attaches an authenticated admin to the request
func withPrincipal(req *http.Request, role string) *http.Request {
	return req.WithContext(auth.WithAdmin(req.Context(), &models.AdminPrincipal{
		AdminID:   testAdminID,
		Email:     "admin@example.com",
		Role:      role,
		SessionID: testSessionID,
	}))
}

// withURLParam sets a chi path parameter on the request
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// assertJSONResponse checks the status and decodes the body into target
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target))
	}
}

// RecordingAudit captures recorded entries
type RecordingAudit struct {
	mu      sync.Mutex
	Entries []*models.AuditLogEntry
}

func (a *RecordingAudit) Record(_ context.Context, entry *models.AuditLogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, entry)
}

func (a *RecordingAudit) Last() *models.AuditLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Entries) == 0 {
		return nil
	}
	return a.Entries[len(a.Entries)-1]
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

func (m *MockLoginService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	return m.LoginFunc(ctx, req)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	TerminateFunc      func(ctx context.Context, sessionID, reason string) (bool, error)
	TerminateOwnedFunc func(ctx context.Context, adminID, sessionID, reason string) (bool, error)
	TerminateAllFunc   func(ctx context.Context, adminID, reason, exceptSessionID string) (int64, error)
	ListActiveFunc     func(ctx context.Context, adminID string) ([]*models.AdminSession, error)
}

func (m *MockSessionService) Terminate(ctx context.Context, sessionID, reason string) (bool, error) {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, sessionID, reason)
	}
	return true, nil
}

func (m *MockSessionService) TerminateOwned(ctx context.Context, adminID, sessionID, reason string) (bool, error) {
	if m.TerminateOwnedFunc != nil {
		return m.TerminateOwnedFunc(ctx, adminID, sessionID, reason)
	}
	return true, nil
}

func (m *MockSessionService) TerminateAll(ctx context.Context, adminID, reason, exceptSessionID string) (int64, error) {
	if m.TerminateAllFunc != nil {
		return m.TerminateAllFunc(ctx, adminID, reason, exceptSessionID)
	}
	return 0, nil
}

func (m *MockSessionService) ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, adminID)
	}
	return nil, nil
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	ResolveFunc    func(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error)
	BeginSetupFunc func(ctx context.Context, adminID, email string) (*auth.TOTPEnrollment, error)
	VerifyFunc     func(ctx context.Context, adminID, code string) error
	DisableFunc    func(ctx context.Context, adminID, code string) error
}

func (m *MockTwoFactorService) Resolve(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error) {
	return m.ResolveFunc(ctx, adminID, role)
}

func (m *MockTwoFactorService) BeginSetup(ctx context.Context, adminID, email string) (*auth.TOTPEnrollment, error) {
	return m.BeginSetupFunc(ctx, adminID, email)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, adminID, code string) error {
	return m.VerifyFunc(ctx, adminID, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, adminID, code string) error {
	return m.DisableFunc(ctx, adminID, code)
}

// MockSecurityConfigService implements SecurityConfigServiceInterface for testing
type MockSecurityConfigService struct {
	GetFunc    func(ctx context.Context) (*models.SecurityConfig, error)
	UpdateFunc func(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*models.SecurityConfig, *models.SecurityConfig, error)
}

func (m *MockSecurityConfigService) Get(ctx context.Context) (*models.SecurityConfig, error) {
	return m.GetFunc(ctx)
}

func (m *MockSecurityConfigService) Update(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*models.SecurityConfig, *models.SecurityConfig, error) {
	return m.UpdateFunc(ctx, overrides, updatedBy)
}

// MockIPRuleService implements IPRuleServiceInterface for testing
type MockIPRuleService struct {
	CreateFunc     func(ctx context.Context, rule *models.IPRule) (*models.IPRule, error)
	ListActiveFunc func(ctx context.Context) ([]models.IPRule, error)
	DeactivateFunc func(ctx context.Context, id string) (*models.IPRule, error)
}

func (m *MockIPRuleService) Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error) {
	return m.CreateFunc(ctx, rule)
}

func (m *MockIPRuleService) ListActive(ctx context.Context) ([]models.IPRule, error) {
	return m.ListActiveFunc(ctx)
}

func (m *MockIPRuleService) Deactivate(ctx context.Context, id string) (*models.IPRule, error) {
	return m.DeactivateFunc(ctx, id)
}

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	ListActiveFunc     func(ctx context.Context) ([]*models.AccountLockout, error)
	UnlockFunc         func(ctx context.Context, lockoutID, unlockedBy string) (*models.AccountLockout, error)
	LockIPFunc         func(ctx context.Context, ip, reason string, duration time.Duration, lockedBy string) (*models.AccountLockout, error)
	RecentAttemptsFunc func(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

func (m *MockLockoutService) ListActive(ctx context.Context) ([]*models.AccountLockout, error) {
	return m.ListActiveFunc(ctx)
}

func (m *MockLockoutService) Unlock(ctx context.Context, lockoutID, unlockedBy string) (*models.AccountLockout, error) {
	return m.UnlockFunc(ctx, lockoutID, unlockedBy)
}

func (m *MockLockoutService) LockIP(ctx context.Context, ip, reason string, duration time.Duration, lockedBy string) (*models.AccountLockout, error) {
	return m.LockIPFunc(ctx, ip, reason, duration, lockedBy)
}

func (m *MockLockoutService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	return m.RecentAttemptsFunc(ctx, email, limit)
}

// MockAuditQuery implements AuditQueryInterface for testing
type MockAuditQuery struct {
	ListFunc func(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, int64, error)
}

func (m *MockAuditQuery) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, int64, error) {
	return m.ListFunc(ctx, f)
}
