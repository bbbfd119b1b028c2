package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval is used when a Waiter has no interval set.
const DefaultPollInterval = 250 * time.Millisecond

// Waiter polls a session until a render marker is present.
type Waiter struct {
	Session  Session
	Interval time.Duration
}

// WaitFor blocks until selector matches an element, the timeout elapses or
// ctx is done. It returns an error wrapping ErrTimedOut on timeout. Every
// check runs under the same deadline, so a check that never returns still
// times out. Failed checks are retried until the deadline; the document is
// replaced while a navigation is in flight.
func (w Waiter) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		found, err := w.Session.Exists(waitCtx, selector)
		if err == nil && found {
			return nil
		}
		if err != nil && waitCtx.Err() == nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			if lastErr != nil {
				return fmt.Errorf("%w (last check error: %v)", ErrTimedOut, lastErr)
			}
			return ErrTimedOut
		case <-ticker.C:
		}
	}
}

// bounded runs fn with a context that expires after timeout. A deadline hit
// by fn that did not come from ctx is reported as ErrTimedOut.
func bounded(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	return err
}
