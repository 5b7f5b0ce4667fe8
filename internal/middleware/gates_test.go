package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/ratelimit"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockIPEvaluator implements IPEvaluator for testing
type MockIPEvaluator struct {
	EvaluateFunc func(ctx context.Context, ip string) (services.IPDecision, error)
	seen         []string
}

func (m *MockIPEvaluator) Evaluate(ctx context.Context, ip string) (services.IPDecision, error) {
	m.seen = append(m.seen, ip)
	return m.EvaluateFunc(ctx, ip)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestClientIP_TrustAllUsesForwardedFor(t *testing.T) {
	var got string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r)
	}), ClientIP(&pkghttp.IPConfig{TrustAll: true}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", got)
}

func TestClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	var got string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r)
	}), ClientIP(&pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.20:4444"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.20", got)
}

func TestIPGate(t *testing.T) {
	blocked := &models.IPRule{ID: "rule-9", RuleType: models.IPRuleBlacklist, IPPattern: "203.0.113.0/24"}
	eval := &MockIPEvaluator{
		EvaluateFunc: func(ctx context.Context, ip string) (services.IPDecision, error) {
			if ip == "203.0.113.5" {
				return services.IPDecision{Allowed: false, Reason: "blacklisted", Rule: blocked}, nil
			}
			return services.IPDecision{Allowed: true}, nil
		},
	}
	h := chain(okHandler(), ClientIP(&pkghttp.IPConfig{TrustAll: true}), IPGate(eval, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, pkghttp.CodeIPRestricted, resp.Code)
	assert.Equal(t, "blacklisted", resp.Reason)

	req = httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPGate_EvaluationErrorDenies(t *testing.T) {
	eval := &MockIPEvaluator{
		EvaluateFunc: func(ctx context.Context, ip string) (services.IPDecision, error) {
			return services.IPDecision{}, errors.New("db down")
		},
	}
	w := httptest.NewRecorder()
	IPGate(eval, testLogger())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pkghttp.CodeSecurityUnavailable, decodeError(t, w).Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Minute, 2, testLogger())
	h := chain(okHandler(), ClientIP(nil), RateLimit(limiter, testLogger()))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("198.51.100.1:1001").Code)

	w := send("198.51.100.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	resp := decodeError(t, w)
	assert.Equal(t, pkghttp.CodeRateLimited, resp.Code)
	assert.Greater(t, resp.RetryAfter, 0)

	assert.Equal(t, http.StatusOK, send("198.51.100.2:1000").Code)
}

func TestLoginBurstLimit(t *testing.T) {
	h := chain(okHandler(), ClientIP(nil), LoginBurstLimit(2))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/auth/login", nil)
		req.RemoteAddr = "198.51.100.50:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, pkghttp.CodeRateLimited, decodeError(t, last).Code)
}

func TestSecureLogger_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), SecureLogger(testLogger()))
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/security/login-attempts?email=a@b.c", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestSecureLogger_RedactsSensitiveQueryValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), SecureLogger(logger))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/security/login-attempts?email=target%40example.com&limit=5", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "/admin/security/login-attempts?email=REDACTED&limit=5", rec["path"])
	assert.NotContains(t, buf.String(), "target")
}
