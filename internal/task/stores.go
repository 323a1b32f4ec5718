package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
)

// BuildTaskStore defines the persistence operations the macro scheduler
// needs. Implemented by postgres.BuildTaskStore.
type BuildTaskStore interface {
	// ClaimNextActionTask atomically claims the next eligible build task,
	// preferring stale running rows over fresh ones. Returns a NotFound
	// store error when nothing is claimable.
	ClaimNextActionTask(ctx context.Context, staleTimeout time.Duration) (*domain.BuildTask, error)

	// UpdateHeartbeat bumps the build task's updated_at.
	UpdateHeartbeat(ctx context.Context, id uuid.UUID) error

	// CompleteTask marks the build task completed and merges the run's stats
	// into its config.
	CompleteTask(ctx context.Context, id uuid.UUID, stats domain.BuildStats) error

	// FailTask records a failed attempt, resetting the row to a retryable
	// state while attempts remain and freezing it at stage=error afterwards.
	FailTask(ctx context.Context, id uuid.UUID, message string, maxAttempts int) error
}

// RecordingTaskStore defines the persistence operations the micro scheduler
// needs. Implemented by postgres.RecordingTaskStore.
type RecordingTaskStore interface {
	// InsertPendingTasks persists new pending tasks, skipping chunks already
	// represented for the same build task. Returns the number inserted.
	InsertPendingTasks(ctx context.Context, tasks []*domain.RecordingTask) (int, error)

	// ResetForBuildTask returns all of the build task's recording tasks to
	// pending, preserving attempt counts and clearing heartbeats.
	ResetForBuildTask(ctx context.Context, buildTaskID uuid.UUID) (int, error)

	// ClaimNext atomically claims one eligible recording task scoped to the
	// build task. Returns a NotFound store error when the backlog is empty.
	ClaimNext(
		ctx context.Context,
		buildTaskID, sourceID uuid.UUID,
		staleTimeout time.Duration,
		maxAttempts int,
	) (*domain.RecordingTask, error)

	// UpdateHeartbeat refreshes the running task's heartbeat.
	UpdateHeartbeat(ctx context.Context, id uuid.UUID) error

	// MarkCompleted marks the recording task completed.
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// MarkFailed marks the recording task failed and records the error.
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// ChunkStore provides read access to crawled content chunks.
// Implemented by postgres.ChunkStore.
type ChunkStore interface {
	// GetChunk fetches the denormalized context for one chunk. Returns a
	// NotFound store error if the chunk does not exist.
	GetChunk(ctx context.Context, chunkID uuid.UUID) (*domain.ChunkContext, error)

	// ListChunks returns up to limit chunk references for the source.
	ListChunks(ctx context.Context, sourceID uuid.UUID, limit int) ([]domain.ChunkRef, error)
}

// ElementStore persists recorder-discovered elements.
// Implemented by postgres.ElementStore.
type ElementStore interface {
	// Persist upserts the elements for the given chunk, keyed by
	// (chunk, semantic ID).
	Persist(ctx context.Context, chunkID uuid.UUID, elements []domain.ActionElement) error
}

// VersionStore performs blue/green version publication.
// Implemented by postgres.VersionStore.
type VersionStore interface {
	// Publish promotes the newest building version of the source to active
	// and archives the previously active one in one atomic step.
	Publish(ctx context.Context, sourceID uuid.UUID) (*domain.VersionPublication, error)
}
