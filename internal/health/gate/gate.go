// Package gate guards the fleet-wide health recompute with a persisted
// last-run watermark. Acquisition is a single atomic compare-and-set, never
// a read-then-write, so two concurrent triggers (two tabs booting, two
// replicas starting) yield at most one effective run per interval.
package gate

import (
	"context"
	"time"
)

// Store is the last-run watermark port.
type Store interface {
	// TryAcquire claims the batch slot when at least interval has elapsed
	// since the last successful run, atomically moving the watermark to now.
	// Returns whether the caller won the slot and the previous watermark
	// (zero when no run has ever completed).
	TryAcquire(ctx context.Context, now time.Time, interval time.Duration) (acquired bool, lastRun time.Time, err error)

	// Rollback restores the previous watermark after a failed or cancelled
	// run, so the next trigger is not gated out by a pass that never
	// finished.
	Rollback(ctx context.Context, previous time.Time) error
}
