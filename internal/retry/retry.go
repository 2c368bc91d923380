// Package retry re-executes failable operations with exponential backoff.
//
// Do is used around bulk loads and schema statements that may fail
// transiently (lock contention, dropped connections). A Policy carries the
// attempt bound, the initial delay and the backoff multiplier; Sleep is
// injectable so tests can count and measure delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Defaults applied to zero Policy fields.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMultiplier  = 2.0
)

// Policy configures Do.
type Policy struct {
	// MaxAttempts bounds the total number of calls, the first included.
	MaxAttempts int
	// BaseDelay is the wait after the first failure. Each further wait is the
	// previous one times Multiplier.
	BaseDelay  time.Duration
	Multiplier float64

	// Retryable decides whether an error is worth another attempt. nil
	// retries every error.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait before attempt n+1 after n failures (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Do calls op until it succeeds, returns a non-retryable error, or
// MaxAttempts calls have failed. After k failures followed by a success it
// has slept exactly k times; there is no sleep after the final failure.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempt(s): %w", attempt, errors.Join(err, lastErr))
		}
	}
	return zero, fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// Run is Do for operations with no result.
func Run(ctx context.Context, p Policy, op func() error) error {
	_, err := Do(ctx, p, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// sleepContext waits for d, returning early with ctx.Err() when ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
