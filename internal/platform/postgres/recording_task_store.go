package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/platform/logger"
	"github.com/tkassel/actionforge/internal/store"
)

// claimRecordingTaskQuery selects and locks one eligible recording task in a
// single atomic step. Eligible rows are pending, or running with a heartbeat
// older than the staleness cutoff and attempts left. Reclaiming a stale row
// costs one attempt; claiming a pending row does not.
const claimRecordingTaskQuery = `
	WITH candidate AS (
		SELECT id, status
		FROM recording_tasks
		WHERE build_task_id = $1
		  AND source_id = $2
		  AND (
		      status = 'pending'
		      OR (status = 'running' AND last_heartbeat < $3 AND attempt_count < $4)
		  )
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE recording_tasks t
	SET status = 'running',
	    last_heartbeat = $5,
	    attempt_count = t.attempt_count + CASE WHEN c.status = 'running' THEN 1 ELSE 0 END,
	    updated_at = $5
	FROM candidate c
	WHERE t.id = c.id
	RETURNING t.id, t.build_task_id, t.source_id, t.chunk_id, t.status,
	          t.attempt_count, t.last_heartbeat, t.last_error, t.config,
	          t.created_at, t.updated_at
`

// RecordingTaskStore implements the micro scheduler's persistence operations
// using PostgreSQL.
type RecordingTaskStore struct {
	db store.DBTX
}

// NewRecordingTaskStore creates a new RecordingTaskStore.
func NewRecordingTaskStore(db store.DBTX) *RecordingTaskStore {
	return &RecordingTaskStore{db: db}
}

// InsertPendingTasks persists the given tasks in pending status. A chunk
// already represented for the same build task is skipped (conflict on the
// (build_task_id, chunk_id) unique index), which makes generation idempotent.
// Returns the number of rows actually inserted.
func (s *RecordingTaskStore) InsertPendingTasks(
	ctx context.Context,
	tasks []*domain.RecordingTask,
) (int, error) {
	query := `
		INSERT INTO recording_tasks
			(id, build_task_id, source_id, chunk_id, status, attempt_count, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (build_task_id, chunk_id) DO NOTHING
	`

	inserted := 0
	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return inserted, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		configJSON, err := json.Marshal(task.Config)
		if err != nil {
			return inserted, fmt.Errorf("failed to marshal recording task config: %w", err)
		}

		var chunkID uuid.NullUUID
		if task.ChunkID != nil {
			chunkID = uuid.NullUUID{UUID: *task.ChunkID, Valid: true}
		}

		result, err := s.db.ExecContext(ctx, query,
			task.ID,
			task.BuildTaskID,
			task.SourceID,
			chunkID,
			task.Status,
			task.AttemptCount,
			configJSON,
			task.CreatedAt,
			task.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert recording task: %w", MapError(err))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rows)
	}

	return inserted, nil
}

// ResetForBuildTask returns every recording task of the build task to
// pending, preserving attempt counts and clearing heartbeats. Rows already
// pending with no heartbeat are untouched, so a second reset in a row
// reports zero.
func (s *RecordingTaskStore) ResetForBuildTask(
	ctx context.Context,
	buildTaskID uuid.UUID,
) (int, error) {
	query := `
		UPDATE recording_tasks
		SET status = 'pending',
		    last_heartbeat = NULL,
		    updated_at = $2
		WHERE build_task_id = $1
		  AND (status <> 'pending' OR last_heartbeat IS NOT NULL)
	`

	result, err := s.db.ExecContext(ctx, query, buildTaskID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset recording tasks: %w", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// ClaimNext atomically claims one eligible recording task within the given
// build task scope. Returns store.ErrRecordingTaskNotFound when no row is
// eligible, which the worker pool interprets as "drain and stop".
func (s *RecordingTaskStore) ClaimNext(
	ctx context.Context,
	buildTaskID, sourceID uuid.UUID,
	staleTimeout time.Duration,
	maxAttempts int,
) (*domain.RecordingTask, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-staleTimeout)

	task, err := s.scanRecordingTask(s.db.QueryRowContext(ctx, claimRecordingTaskQuery,
		buildTaskID,
		sourceID,
		cutoff,
		maxAttempts,
		now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRecordingTaskNotFound
		}
		return nil, fmt.Errorf("failed to claim recording task: %w", MapError(err))
	}

	if task.AttemptCount > 0 {
		log.Debug("claimed recording task",
			"recording_task_id", task.ID,
			"attempt_count", task.AttemptCount)
	}

	return task, nil
}

// UpdateHeartbeat refreshes the running task's heartbeat. A missing row is a
// no-op; heartbeat failures are never escalated by callers.
func (s *RecordingTaskStore) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE recording_tasks
		SET last_heartbeat = $1, updated_at = $1
		WHERE id = $2
	`

	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update recording task heartbeat: %w", MapError(err))
	}
	return nil
}

// MarkCompleted marks the recording task completed.
func (s *RecordingTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE recording_tasks
		SET status = 'completed', updated_at = $1
		WHERE id = $2
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark recording task completed: %w", MapError(err))
	}

	return CheckRowsAffected(result, "recording task")
}

// MarkFailed marks the recording task failed and records the error. Failed
// rows stay failed; they only re-enter circulation through a full reset at
// the start of a build task rerun.
func (s *RecordingTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE recording_tasks
		SET status = 'failed',
		    attempt_count = attempt_count + 1,
		    last_error = $2,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark recording task failed: %w", MapError(err))
	}

	return CheckRowsAffected(result, "recording task")
}

func (s *RecordingTaskStore) scanRecordingTask(row rowScanner) (*domain.RecordingTask, error) {
	var (
		task       domain.RecordingTask
		chunkID    uuid.NullUUID
		lastError  sql.NullString
		configJSON []byte
	)

	err := row.Scan(
		&task.ID,
		&task.BuildTaskID,
		&task.SourceID,
		&chunkID,
		&task.Status,
		&task.AttemptCount,
		&task.LastHeartbeat,
		&lastError,
		&configJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if chunkID.Valid {
		id := chunkID.UUID
		task.ChunkID = &id
	}
	task.LastError = lastError.String

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &task.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recording task config: %w", err)
		}
	}

	return &task, nil
}
