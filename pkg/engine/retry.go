package engine

import (
	"context"
	"time"
)

// DefaultRetryAttempts is the per-step retry budget when neither the action
// nor the logic spec overrides it.
const DefaultRetryAttempts = 3

// RetryPolicy is a standalone retry-budget value: how many attempts a step
// gets and how long to wait between them. It carries no execution state, so
// it can be tested without a browser driver.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first included.
	MaxAttempts int

	// Delay is the base wait between attempts.
	Delay time.Duration

	// Backoff scales the delay linearly with the attempt number when set.
	Backoff bool
}

// DefaultRetryPolicy returns the engine's default per-step policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultRetryAttempts,
		Delay:       500 * time.Millisecond,
		Backoff:     true,
	}
}

// Extend returns a copy of the policy with its attempt budget grown by n.
func (p RetryPolicy) Extend(n int) RetryPolicy {
	p.MaxAttempts += n
	return p
}

// NextDelay returns the wait before the given attempt number (1-based).
// Attempt 1 never waits.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	if p.Backoff {
		return time.Duration(attempt-1) * p.Delay
	}
	return p.Delay
}

// Wait sleeps the delay for the given attempt, returning early with the
// context's error if it is canceled first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.NextDelay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
