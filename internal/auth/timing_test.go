package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureDelay_TargetWithinBounds(t *testing.T) {
	d := FailureDelay{Base: 50 * time.Millisecond, Jitter: 20 * time.Millisecond}

	for i := 0; i < 50; i++ {
		target := d.Target()
		assert.GreaterOrEqual(t, target, 50*time.Millisecond)
		assert.Less(t, target, 70*time.Millisecond)
	}
}

func TestFailureDelay_WaitFromPadsElapsedTime(t *testing.T) {
	d := FailureDelay{Base: 30 * time.Millisecond}
	start := time.Now()

	d.WaitFrom(context.Background(), start)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFailureDelay_WaitFromReturnsWhenAlreadyElapsed(t *testing.T) {
	d := FailureDelay{Base: 10 * time.Millisecond}
	start := time.Now().Add(-time.Second)

	before := time.Now()
	d.WaitFrom(context.Background(), start)

	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestFailureDelay_WaitFromHonorsCancellation(t *testing.T) {
	d := FailureDelay{Base: 5 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := time.Now()
	d.WaitFrom(ctx, time.Now())

	assert.Less(t, time.Since(before), time.Second)
}

func TestFailureDelay_ZeroJitter(t *testing.T) {
	assert.Equal(t, time.Duration(0), cryptoRandDuration(0))
	assert.Equal(t, 25*time.Millisecond, FailureDelay{Base: 25 * time.Millisecond}.Target())
}
