// Package retry provides a bounded retry policy with a caller-supplied
// classifier. Only errors the classifier reports as retryable are retried;
// every other error is returned immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted wraps the last retryable error once MaxAttempts is reached.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how many times an operation may run and how long to wait
// between attempts. The zero value runs the operation exactly once.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
	// OnRetry is called before each wait with the 1-based attempt that failed.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, the context is
// done, or MaxAttempts is reached.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}

	return errors.Join(ErrExhausted, err)
}

func sleep(ctx context.Context, d time.Duration) error {
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
