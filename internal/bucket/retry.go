package bucket

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds upload retries with exponential backoff. The zero
// value performs a single attempt, which is the default when neither the
// bucket nor the global configuration sets one.
type RetryPolicy struct {
	Attempts   int           // total attempts including the first; <=1 means no retry
	WaitMin    time.Duration // first backoff wait, default 1s
	WaitMax    time.Duration // backoff cap, 0 means uncapped
	Multiplier float64       // backoff growth factor, default 2
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempt budget is exhausted. Only errors wrapping ErrTransient are
// retried; the last error is returned unchanged. The backoff sleep
// respects ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.WaitMin
	if wait <= 0 {
		wait = time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			wait = time.Duration(float64(wait) * mult)
			if p.WaitMax > 0 && wait > p.WaitMax {
				wait = p.WaitMax
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			return err
		}
	}
	return err
}
