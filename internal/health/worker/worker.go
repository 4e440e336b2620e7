// Package worker periodically triggers the fleet health recompute. The loop
// itself is dumb on purpose: every tick just offers a run, and the batch gate
// decides whether one actually happens. Multiple replicas can run this worker
// against a shared gate without coordination.
package worker

import (
	"context"
	"log/slog"
	"time"

	"aegis/internal/health/service"
)

// Runner is the slice of the health service the worker drives.
type Runner interface {
	RunIfDue(ctx context.Context) (service.Result, error)
}

// Worker fires RunIfDue on a fixed poll interval until its context ends.
type Worker struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

// New builds a worker that polls at the given interval. The poll interval can
// be much shorter than the batch interval; the gate absorbs the extra ticks.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{runner: runner, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. It offers a run immediately on start so
// a fresh deployment does not wait a full poll interval for its first pass.
func (w *Worker) Run(ctx context.Context) {
	w.offer(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "health worker stopping")
			return
		case <-ticker.C:
			w.offer(ctx)
		}
	}
}

func (w *Worker) offer(ctx context.Context) {
	result, err := w.runner.RunIfDue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.ErrorContext(ctx, "health recompute failed",
			slog.String("error", err.Error()))
		return
	}
	if result.Skipped {
		w.logger.DebugContext(ctx, "health recompute skipped",
			slog.Time("last_run", result.LastRun))
	}
}
