package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BuildTask validation errors
var (
	// ErrBuildTaskIDEmpty is returned when a build task ID is empty or nil.
	ErrBuildTaskIDEmpty = errors.New("build task ID cannot be empty")

	// ErrBuildTaskStageInvalid is returned when a build task has an unknown stage.
	ErrBuildTaskStageInvalid = errors.New("build task stage is invalid")

	// ErrBuildTaskStageStatusInvalid is returned when a build task has an unknown stage status.
	ErrBuildTaskStageStatusInvalid = errors.New("build task stage status is invalid")

	// ErrBuildTaskSourceIDMissing is returned when an operation requires a resolved
	// sourceId but the build task does not have one yet.
	ErrBuildTaskSourceIDMissing = errors.New("build task sourceId is not set")
)

// BuildTaskStage represents the pipeline stage a build task is in.
type BuildTaskStage string

// Possible build task stages. A task moves init -> knowledge_build ->
// action_build and terminates in completed or error. action_build is
// re-enterable until the attempt budget is exhausted.
const (
	BuildStageInit           BuildTaskStage = "init"
	BuildStageKnowledgeBuild BuildTaskStage = "knowledge_build"
	BuildStageActionBuild    BuildTaskStage = "action_build"
	BuildStageCompleted      BuildTaskStage = "completed"
	BuildStageError          BuildTaskStage = "error"
)

// BuildStageStatus represents the status of the current stage.
type BuildStageStatus string

// Possible stage status values.
const (
	BuildStatusPending   BuildStageStatus = "pending"
	BuildStatusRunning   BuildStageStatus = "running"
	BuildStatusCompleted BuildStageStatus = "completed"
	BuildStatusError     BuildStageStatus = "error"
)

// BuildStats holds the aggregated counters for one action-build run.
// It is persisted inside BuildTaskConfig and surfaced on BuildTaskResult.
type BuildStats struct {
	RecordingTasksReset     int   `json:"recording_tasks_reset"`
	RecordingTasksCreated   int   `json:"recording_tasks_created"`
	RecordingTasksCompleted int   `json:"recording_tasks_completed"`
	RecordingTasksFailed    int   `json:"recording_tasks_failed"`
	ElementsCreated         int   `json:"elements_created"`
	DurationMs              int64 `json:"duration_ms"`
}

// BuildTaskConfig is the typed form of the build task's JSONB config column.
// AttemptCount only ever increases; once it reaches the configured maximum the
// row is frozen at stage=error.
type BuildTaskConfig struct {
	AttemptCount int         `json:"attempt_count"`
	LastError    string      `json:"last_error,omitempty"`
	Stats        *BuildStats `json:"stats,omitempty"`
}

// BuildTask is the macro unit of work: one per source rebuild cycle.
// SourceID is nil until the preceding knowledge stage resolves it.
type BuildTask struct {
	ID                   uuid.UUID        `json:"id"`
	SourceID             *uuid.UUID       `json:"source_id,omitempty"`
	Stage                BuildTaskStage   `json:"stage"`
	StageStatus          BuildStageStatus `json:"stage_status"`
	Config               BuildTaskConfig  `json:"config"`
	KnowledgeStartedAt   *time.Time       `json:"knowledge_started_at,omitempty"`
	KnowledgeCompletedAt *time.Time       `json:"knowledge_completed_at,omitempty"`
	ActionStartedAt      *time.Time       `json:"action_started_at,omitempty"`
	ActionCompletedAt    *time.Time       `json:"action_completed_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Validate checks if the BuildTask has valid data.
func (t *BuildTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrBuildTaskIDEmpty
	}

	switch t.Stage {
	case BuildStageInit, BuildStageKnowledgeBuild, BuildStageActionBuild,
		BuildStageCompleted, BuildStageError:
	default:
		return ErrBuildTaskStageInvalid
	}

	switch t.StageStatus {
	case BuildStatusPending, BuildStatusRunning, BuildStatusCompleted, BuildStatusError:
	default:
		return ErrBuildTaskStageStatusInvalid
	}

	return nil
}

// RequireSourceID returns the resolved source ID or an error if the preceding
// stage has not set one.
func (t *BuildTask) RequireSourceID() (uuid.UUID, error) {
	if t.SourceID == nil || *t.SourceID == uuid.Nil {
		return uuid.Nil, ErrBuildTaskSourceIDMissing
	}
	return *t.SourceID, nil
}
