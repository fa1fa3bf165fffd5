// Package retry wraps fallible portal calls with bounded exponential
// backoff and jitter.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/govbridge/govchat/internal/portal"
)

// Policy holds the fixed retry configuration. It is not tunable per
// request.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a retry policy.
func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		sleep:      sleepCtx,
	}
}

// Do runs fn up to MaxRetries+1 times. Failures classified permanent
// (or context cancellation) stop retrying immediately. The attempts
// count of the final outcome is returned alongside the last error.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (attempts int, err error) {
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !portal.IsTemporary(err) {
			return attempts, err
		}
		if attempt >= p.MaxRetries {
			return attempts, err
		}
		if serr := p.sleep(ctx, p.Delay(attempt)); serr != nil {
			return attempts, err
		}
	}
}

// Delay computes the backoff before retrying after the given attempt
// (0-based): min(base * 2^attempt, max) plus 10-30% random jitter so
// retries across requests do not synchronize.
func (p *Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := 0.1 + 0.2*rand.Float64()
	return delay + time.Duration(float64(delay)*jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
