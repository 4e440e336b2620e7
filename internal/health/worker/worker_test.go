package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aegis/internal/health/service"
)

type countingRunner struct {
	offers atomic.Int64
}

func (r *countingRunner) RunIfDue(context.Context) (service.Result, error) {
	n := r.offers.Add(1)
	// Only the first offer is effective; the rest are gated out, as the real
	// gate would do.
	return service.Result{Skipped: n > 1}, nil
}

func TestWorker_OffersImmediatelyAndOnTicks(t *testing.T) {
	runner := &countingRunner{}
	w := New(runner, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// The first offer happens before the first tick; a few more accumulate
	// over the poll interval.
	assert.Eventually(t, func() bool {
		return runner.offers.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
}
