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

// BuildSchedulerConfig holds the macro scheduler's policy knobs.
type BuildSchedulerConfig struct {
	// StaleTimeout is how old a running build task's heartbeat may get
	// before another poller may reclaim it.
	StaleTimeout time.Duration

	// MaxAttempts is the build task attempt budget; at this count the row is
	// frozen at stage=error.
	MaxAttempts int
}

// PublishResult reports the outcome of a blue/green version publication.
// Publication failures are reported here, never as task failures: publishing
// runs only after the build task has already completed.
type PublishResult struct {
	Success           bool       `json:"success"`
	VersionID         *uuid.UUID `json:"version_id,omitempty"`
	ArchivedVersionID *uuid.UUID `json:"archived_version_id,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// BuildScheduler coordinates build task ownership: atomic claims with stale
// recovery, heartbeats, completion, failure with an attempt budget, and
// version publication.
type BuildScheduler struct {
	store    BuildTaskStore
	versions VersionStore
	config   BuildSchedulerConfig
	logger   *slog.Logger
}

// NewBuildScheduler creates a new BuildScheduler.
func NewBuildScheduler(
	taskStore BuildTaskStore,
	versions VersionStore,
	config BuildSchedulerConfig,
	logger *slog.Logger,
) *BuildScheduler {
	return &BuildScheduler{
		store:    taskStore,
		versions: versions,
		config:   config,
		logger:   logger,
	}
}

// ClaimNextActionTask claims the next build task eligible for the action
// stage, recovering stale rows first. Returns (nil, nil) when there is no
// work.
func (s *BuildScheduler) ClaimNextActionTask(ctx context.Context) (*domain.BuildTask, error) {
	task, err := s.store.ClaimNextActionTask(ctx, s.config.StaleTimeout)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: claim build task: %v", ErrSchedulerUnavailable, err)
	}
	return task, nil
}

// UpdateHeartbeat bumps the build task's updated_at. Best-effort: callers
// run it under a Heartbeat, which logs and swallows errors.
func (s *BuildScheduler) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	return s.store.UpdateHeartbeat(ctx, id)
}

// CompleteTask marks the build task completed with the run's stats merged
// into its config.
func (s *BuildScheduler) CompleteTask(
	ctx context.Context,
	id uuid.UUID,
	stats domain.BuildStats,
) error {
	if err := s.store.CompleteTask(ctx, id, stats); err != nil {
		return fmt.Errorf("failed to complete build task: %w", err)
	}

	s.logger.Info("build task completed",
		"build_task_id", id,
		"recording_tasks_completed", stats.RecordingTasksCompleted,
		"recording_tasks_failed", stats.RecordingTasksFailed,
		"elements_created", stats.ElementsCreated,
		"duration_ms", stats.DurationMs)
	return nil
}

// FailTask records a failed attempt against the attempt budget.
func (s *BuildScheduler) FailTask(ctx context.Context, id uuid.UUID, message string) error {
	if err := s.store.FailTask(ctx, id, message, s.config.MaxAttempts); err != nil {
		return fmt.Errorf("failed to record build task failure: %w", err)
	}

	s.logger.Warn("build task failed",
		"build_task_id", id,
		"error", message)
	return nil
}

// PublishVersion promotes the source's newest building version to active.
// It never returns an error: the outcome is reported on the result and
// logged, because publication runs after the build task already completed
// and must not retroactively fail it.
func (s *BuildScheduler) PublishVersion(ctx context.Context, sourceID uuid.UUID) *PublishResult {
	publication, err := s.versions.Publish(ctx, sourceID)
	if err != nil {
		s.logger.Error("version publication failed",
			"source_id", sourceID,
			"error", err)
		return &PublishResult{Success: false, Error: err.Error()}
	}

	versionID := publication.VersionID
	return &PublishResult{
		Success:           true,
		VersionID:         &versionID,
		ArchivedVersionID: publication.ArchivedVersionID,
	}
}
