package common

import (
	"context"
	"time"
)

// PollUntil calls fn every interval until it returns true, the context is
// cancelled, or the deadline passes. Returns true if fn reported success,
// false otherwise. fn errors are not surfaced; a failing probe is treated
// as "not yet".
func PollUntil(ctx context.Context, interval time.Duration, deadline time.Time, fn func(context.Context) bool) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First check immediately rather than waiting a full interval.
	if fn(ctx) {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			if now.After(deadline) {
				return false
			}
			if fn(ctx) {
				return true
			}
		}
	}
}
