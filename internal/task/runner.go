package task

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// RunnerConfig holds the poll loop's timing knobs.
type RunnerConfig struct {
	// PollInterval is how long the runner sleeps when a claim finds no work
	// or fails. A small jitter is added so multiple pollers do not hit the
	// database in lockstep.
	PollInterval time.Duration
}

// Runner is the long-lived poll loop around a BuildWorker: process build
// tasks back to back while work exists, sleep between idle polls, stop
// cleanly on context cancellation.
type Runner struct {
	worker *BuildWorker
	config RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(worker *BuildWorker, config RunnerConfig, logger *slog.Logger) *Runner {
	return &Runner{
		worker: worker,
		config: config,
		logger: logger,
	}
}

// Run polls until ctx is cancelled. Cancellation is a normal stop and
// returns nil; individual run failures are logged and absorbed by the next
// poll cycle.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("poller starting", "poll_interval", r.config.PollInterval)

	for {
		result, err := r.worker.RunOnce(ctx)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.logger.Info("poller stopping")
				return nil
			}
			r.logger.Error("build task run failed", "error", err)

		case result == nil:
			r.logger.Debug("no build tasks available")

		default:
			r.logger.Info("build task run finished",
				"build_task_id", result.TaskID,
				"success", result.Success,
				"completed", result.RecordingTasksCompleted,
				"failed", result.RecordingTasksFailed,
				"elements", result.ElementsCreated,
				"duration_ms", result.DurationMs)
			// There was work; poll again immediately in case more is queued.
			if ctx.Err() == nil {
				continue
			}
		}

		if !sleepCtx(ctx, r.jitteredInterval()) {
			r.logger.Info("poller stopping")
			return nil
		}
	}
}

// jitteredInterval spreads pollers by up to 10% of the interval.
func (r *Runner) jitteredInterval() time.Duration {
	interval := r.config.PollInterval
	if interval <= 0 {
		return time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(interval)/10 + 1))
	return interval + jitter
}
