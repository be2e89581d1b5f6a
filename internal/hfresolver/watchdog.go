package hfresolver

import (
	"context"
	"time"
)

// RunWatchdog aborts an HF resolution run once the run as a whole exceeds a
// configured duration, invoking onAbort (which the caller uses to increment
// the run-aborted metric).
type RunWatchdog struct {
	timeout time.Duration
	onAbort func()
}

// NewRunWatchdog constructs a watchdog with the given stall timeout.
func NewRunWatchdog(timeout time.Duration, onAbort func()) *RunWatchdog {
	return &RunWatchdog{timeout: timeout, onAbort: onAbort}
}

// Watch runs work, invoking onAbort and returning context.DeadlineExceeded
// if work does not return within the watchdog's timeout.
func (w *RunWatchdog) Watch(ctx context.Context, work func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- work(runCtx) }()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if w.onAbort != nil {
			w.onAbort()
		}
		return runCtx.Err()
	}
}
