package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Policy is a bounded exponential backoff: attempt n waits base*2^(n-1),
// capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep overrides how delays are served (useful for tests). It must return
	// early with ctx.Err() when the context ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used when configuration leaves retry unset.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Decision is the classifier's verdict on a failed attempt.
type Decision struct {
	Retry bool
	// After is a server-requested delay (Retry-After). Zero means use backoff.
	After time.Duration
}

// Attempts returns the effective attempt bound (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay before the attempt following attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := p.maxDelay()
	if attempt <= 0 {
		attempt = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return DefaultMaxDelay
}

func (p Policy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if maxDelay := p.maxDelay(); delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Do runs op until it succeeds, the classifier declines a retry, the attempt
// bound is reached, or ctx ends. It returns the number of attempts made and the
// last error. notify, when set, is called before each wait.
func (p Policy) Do(
	ctx context.Context,
	op func(ctx context.Context, attempt int) error,
	classify func(err error) Decision,
	notify func(attempt int, delay time.Duration, err error),
) (int, error) {
	if ctx == nil {
		return 0, errors.New("retry: nil context")
	}
	attempts := p.Attempts()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, fmt.Errorf("%w (last error: %w)", ctxErr, err)
		}
		decision := classify(err)
		if !decision.Retry || attempt >= attempts {
			return attempt, err
		}
		delay := p.Backoff(attempt)
		if decision.After > 0 {
			delay = p.capDelay(decision.After)
		}
		if notify != nil {
			notify(attempt, delay, err)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return attempt, sleepErr
		}
	}
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
