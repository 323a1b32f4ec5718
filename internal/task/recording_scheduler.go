package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/store"
)

// RecordingSchedulerConfig holds the micro scheduler's policy knobs.
type RecordingSchedulerConfig struct {
	// StaleTimeout is how old a running recording task's heartbeat may get
	// before the row becomes reclaimable.
	StaleTimeout time.Duration

	// MaxAttempts caps stale reclaims; a running row at this count stays
	// where it is until the staleness sweep of a future rerun resets it.
	MaxAttempts int
}

// RecordingScheduler coordinates recording task ownership within one build
// task run: bulk reset, atomic claims with stale reclaim, heartbeats and
// terminal transitions.
type RecordingScheduler struct {
	store  RecordingTaskStore
	config RecordingSchedulerConfig
	logger *slog.Logger
}

// NewRecordingScheduler creates a new RecordingScheduler.
func NewRecordingScheduler(
	taskStore RecordingTaskStore,
	config RecordingSchedulerConfig,
	logger *slog.Logger,
) *RecordingScheduler {
	return &RecordingScheduler{
		store:  taskStore,
		config: config,
		logger: logger,
	}
}

// ResetForBuildTask returns every recording task of the build task to
// pending so a rerun starts from a clean slate without re-generating tasks.
// Attempt counts survive the reset. Idempotent: a second call changes
// nothing.
func (s *RecordingScheduler) ResetForBuildTask(
	ctx context.Context,
	buildTaskID uuid.UUID,
) (int, error) {
	count, err := s.store.ResetForBuildTask(ctx, buildTaskID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset recording tasks: %w", err)
	}

	if count > 0 {
		s.logger.Info("reset recording tasks to pending",
			"build_task_id", buildTaskID,
			"count", count)
	}
	return count, nil
}

// ClaimNext claims one eligible recording task for the build task. Returns
// (nil, nil) when the backlog is empty; any store failure is wrapped as
// ErrSchedulerUnavailable so the worker pool drains before propagating it.
func (s *RecordingScheduler) ClaimNext(
	ctx context.Context,
	buildTaskID, sourceID uuid.UUID,
) (*domain.RecordingTask, error) {
	task, err := s.store.ClaimNext(ctx, buildTaskID, sourceID, s.config.StaleTimeout, s.config.MaxAttempts)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: claim recording task: %v", ErrSchedulerUnavailable, err)
	}
	return task, nil
}

// UpdateHeartbeat refreshes the running task's heartbeat.
func (s *RecordingScheduler) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	return s.store.UpdateHeartbeat(ctx, id)
}

// MarkCompleted marks the recording task completed.
func (s *RecordingScheduler) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkCompleted(ctx, id)
}

// MarkFailed marks the recording task failed with the given message. Past
// the attempt budget the row simply stays failed; there is no separate
// terminal state for exhausted tasks.
func (s *RecordingScheduler) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return s.store.MarkFailed(ctx, id, message)
}
