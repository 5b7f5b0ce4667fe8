// Package ratelimit implements the fixed-window request limiter applied to admin routes.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Defaults applied when the limiter is built with zero values
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 30
)

// Store counts hits per key within a fixed window. Increment starts a new window
// {count: 1, resetAt: now+window} when none is open for key.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of a rate check
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	ResetAt    time.Time
	RetryAfter int // seconds, set only when denied
}

// Limiter enforces at most max requests per key per window
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a new Limiter
func NewLimiter(store Store, window time.Duration, max int, logger *slog.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &Limiter{
		store:  store,
		window: window,
		max:    max,
		logger: logger,
		now:    time.Now,
	}
}

// Window returns the configured window length
func (l *Limiter) Window() time.Duration { return l.window }

// Check counts a request for key. A store error allows the request.
func (l *Limiter) Check(ctx context.Context, key string) Decision {
	count, resetAt, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit store unavailable, allowing request",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return Decision{Allowed: true, Limit: l.max}
	}

	d := Decision{
		Allowed: count <= int64(l.max),
		Count:   count,
		Limit:   l.max,
		ResetAt: resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = retryAfterSeconds(resetAt.Sub(l.now()))
	}
	return d
}

func retryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 1
	}
	return int(math.Ceil(remaining.Seconds()))
}
