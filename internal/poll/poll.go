// Package poll repeats a check until it reports success.
// The check itself carries no retry bound; the Policy supplied by the
// caller decides how long to keep asking.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrNotReady is returned when the policy timeout expires before the
// check succeeds.
var ErrNotReady = errors.New("poll: condition not met")

// Check reports whether the awaited condition holds. A returned error
// stops polling.
type Check func(ctx context.Context) (bool, error)

// Policy configures the delay between checks.
type Policy struct {
	// Interval is the delay after the first failed check.
	Interval time.Duration

	// MaxInterval caps the exponentially growing delay.
	MaxInterval time.Duration

	// Timeout bounds the total polling time. Zero polls until the
	// context is done.
	Timeout time.Duration
}

// DefaultPolicy is suitable for waiting on a reboot.
func DefaultPolicy() Policy {
	return Policy{
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
		Timeout:     0,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.Interval > 0 {
		b.InitialInterval = p.Interval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = 0.1
	return b
}

// Until runs check until it returns true, an error, or the policy gives up.
// It returns the number of checks made.
func Until(ctx context.Context, policy Policy, check Check) (int, error) {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		ok, err := check(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			return struct{}{}, ErrNotReady
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxElapsedTime(policy.Timeout),
	)
	if err == nil {
		return attempts, nil
	}
	if errors.Is(err, ErrNotReady) {
		return attempts, fmt.Errorf("after %d attempts: %w", attempts, ErrNotReady)
	}
	return attempts, err
}
