package request

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential delays between retry attempts.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Delay returns the delay to wait after the given attempt (1-based),
// with 10% jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Exponential: baseDelay * 2^(attempt-1)
	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(b.BaseDelay) * multiplier)

	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// Sleep waits out the delay for the given attempt, or returns early with
// the context's error if it is cancelled first.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
