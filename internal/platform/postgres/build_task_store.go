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

// buildTaskColumns is the column list returned by every build task query, in
// scan order.
const buildTaskColumns = `id, source_id, stage, stage_status, config,
	knowledge_started_at, knowledge_completed_at,
	action_started_at, action_completed_at,
	created_at, updated_at`

// claimStaleBuildTaskQuery reclaims a build task whose owner stopped
// heartbeating. The CTE locks exactly one candidate row with SKIP LOCKED so
// concurrent claimants never win the same row.
const claimStaleBuildTaskQuery = `
	WITH candidate AS (
		SELECT id
		FROM build_tasks
		WHERE stage = 'action_build'
		  AND stage_status = 'running'
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE build_tasks t
	SET stage = 'action_build',
	    stage_status = 'running',
	    action_started_at = $2,
	    updated_at = $2
	FROM candidate c
	WHERE t.id = c.id
	RETURNING t.id, t.source_id, t.stage, t.stage_status, t.config,
	          t.knowledge_started_at, t.knowledge_completed_at,
	          t.action_started_at, t.action_completed_at,
	          t.created_at, t.updated_at
`

// claimFreshBuildTaskQuery claims a build task whose knowledge stage just
// finished. Same locking discipline as the stale variant.
const claimFreshBuildTaskQuery = `
	WITH candidate AS (
		SELECT id
		FROM build_tasks
		WHERE stage = 'knowledge_build'
		  AND stage_status = 'completed'
		ORDER BY updated_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE build_tasks t
	SET stage = 'action_build',
	    stage_status = 'running',
	    action_started_at = $1,
	    updated_at = $1
	FROM candidate c
	WHERE t.id = c.id
	RETURNING t.id, t.source_id, t.stage, t.stage_status, t.config,
	          t.knowledge_started_at, t.knowledge_completed_at,
	          t.action_started_at, t.action_completed_at,
	          t.created_at, t.updated_at
`

// BuildTaskStore implements the macro scheduler's persistence operations
// using PostgreSQL.
type BuildTaskStore struct {
	db store.DBTX
}

// NewBuildTaskStore creates a new BuildTaskStore.
func NewBuildTaskStore(db store.DBTX) *BuildTaskStore {
	return &BuildTaskStore{db: db}
}

// ClaimNextActionTask atomically claims the next build task eligible for the
// action stage. Stale running rows (heartbeat older than staleTimeout) are
// recovered before fresh rows coming out of the knowledge stage. Returns
// store.ErrBuildTaskNotFound when nothing is claimable.
func (s *BuildTaskStore) ClaimNextActionTask(
	ctx context.Context,
	staleTimeout time.Duration,
) (*domain.BuildTask, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-staleTimeout)

	task, err := s.scanBuildTask(
		s.db.QueryRowContext(ctx, claimStaleBuildTaskQuery, cutoff, now),
	)
	if err == nil {
		log.Info("reclaimed stale build task",
			"build_task_id", task.ID,
			"heartbeat_cutoff", cutoff)
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim stale build task: %w", MapError(err))
	}

	task, err = s.scanBuildTask(
		s.db.QueryRowContext(ctx, claimFreshBuildTaskQuery, now),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBuildTaskNotFound
		}
		return nil, fmt.Errorf("failed to claim build task: %w", MapError(err))
	}

	return task, nil
}

// UpdateHeartbeat bumps the build task's updated_at so concurrent pollers do
// not consider it stale. Best-effort from the caller's perspective: a missing
// row is treated as a no-op.
func (s *BuildTaskStore) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE build_tasks SET updated_at = $1 WHERE id = $2`

	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update build task heartbeat: %w", MapError(err))
	}
	return nil
}

// CompleteTask marks the build task completed and merges the run's stats into
// its config.
func (s *BuildTaskStore) CompleteTask(
	ctx context.Context,
	id uuid.UUID,
	stats domain.BuildStats,
) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal build stats: %w", err)
	}

	query := `
		UPDATE build_tasks
		SET stage = 'completed',
		    stage_status = 'completed',
		    action_completed_at = $2,
		    updated_at = $2,
		    config = jsonb_set(config, '{stats}', $3::jsonb, true)
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC(), statsJSON)
	if err != nil {
		return fmt.Errorf("failed to complete build task: %w", MapError(err))
	}

	return CheckRowsAffected(result, "build task")
}

// FailTask records a failed attempt. While the attempt budget lasts, the row
// is reset to the exact state the fresh-claim query looks for so a later
// poll can pick it up again; at maxAttempts it is frozen at stage=error.
// The attempt count in config only ever increases.
func (s *BuildTaskStore) FailTask(
	ctx context.Context,
	id uuid.UUID,
	message string,
	maxAttempts int,
) error {
	query := `
		UPDATE build_tasks
		SET config = jsonb_set(
		        jsonb_set(
		            config,
		            '{attempt_count}',
		            to_jsonb(COALESCE((config->>'attempt_count')::int, 0) + 1),
		            true
		        ),
		        '{last_error}',
		        to_jsonb($2::text),
		        true
		    ),
		    stage = CASE
		        WHEN COALESCE((config->>'attempt_count')::int, 0) + 1 >= $3
		        THEN 'error' ELSE 'knowledge_build'
		    END,
		    stage_status = CASE
		        WHEN COALESCE((config->>'attempt_count')::int, 0) + 1 >= $3
		        THEN 'error' ELSE 'completed'
		    END,
		    updated_at = $4
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, message, maxAttempts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to fail build task: %w", MapError(err))
	}

	return CheckRowsAffected(result, "build task")
}

// GetTask retrieves a build task by ID.
func (s *BuildTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.BuildTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM build_tasks WHERE id = $1`, buildTaskColumns)

	task, err := s.scanBuildTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBuildTaskNotFound
		}
		return nil, fmt.Errorf("failed to get build task: %w", MapError(err))
	}

	return task, nil
}

// rowScanner abstracts *sql.Row so scan helpers work in both single-row and
// multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *BuildTaskStore) scanBuildTask(row rowScanner) (*domain.BuildTask, error) {
	var (
		task       domain.BuildTask
		sourceID   uuid.NullUUID
		configJSON []byte
	)

	err := row.Scan(
		&task.ID,
		&sourceID,
		&task.Stage,
		&task.StageStatus,
		&configJSON,
		&task.KnowledgeStartedAt,
		&task.KnowledgeCompletedAt,
		&task.ActionStartedAt,
		&task.ActionCompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceID.Valid {
		id := sourceID.UUID
		task.SourceID = &id
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &task.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal build task config: %w", err)
		}
	}

	return &task, nil
}
