package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed authentication responses to a randomized minimum duration
// so that unknown accounts and wrong passwords are indistinguishable by latency
type FailureDelay struct {
	Base   time.Duration
	Jitter time.Duration
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Target returns the total duration a failed attempt should take
func (d FailureDelay) Target() time.Duration {
	return d.Base + cryptoRandDuration(d.Jitter)
}

// WaitFrom sleeps until at least Target() has elapsed since start, or ctx is done
func (d FailureDelay) WaitFrom(ctx context.Context, start time.Time) {
	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
