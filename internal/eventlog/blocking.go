package eventlog

import (
	"context"
	"time"
)

// waitNotify blocks until ch is closed, ctx is done or timeout elapses.
// A non-positive timeout waits without a deadline. Returns true if woken by ch.
func waitNotify(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
