package verification

import (
	"context"
	"time"
)

// Scheduler abstracts the wait between poll attempts so the retry loop is
// testable without real time. The poller blocks only its own goroutine on
// Wait; it never holds a lock across it.
type Scheduler interface {
	Wait(ctx context.Context, d time.Duration) error
}

// RealScheduler waits on the wall clock, honoring context cancellation.
type RealScheduler struct{}

func (RealScheduler) Wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
