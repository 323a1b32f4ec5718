package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RecordingTask validation errors
var (
	// ErrRecordingTaskIDEmpty is returned when a recording task ID is empty or nil.
	ErrRecordingTaskIDEmpty = errors.New("recording task ID cannot be empty")

	// ErrRecordingTaskBuildTaskIDEmpty is returned when a recording task's build task ID is empty.
	ErrRecordingTaskBuildTaskIDEmpty = errors.New("recording task build task ID cannot be empty")

	// ErrRecordingTaskSourceIDEmpty is returned when a recording task's source ID is empty.
	ErrRecordingTaskSourceIDEmpty = errors.New("recording task source ID cannot be empty")

	// ErrRecordingTaskStatusInvalid is returned when a recording task has an unknown status.
	ErrRecordingTaskStatusInvalid = errors.New("recording task status is invalid")
)

// RecordingTaskStatus represents the current state of a recording task.
type RecordingTaskStatus string

// Possible recording task status values. A task moves pending -> running ->
// {completed|failed}; running -> pending happens only through stale recovery
// inside the claim query.
const (
	RecordingStatusPending   RecordingTaskStatus = "pending"
	RecordingStatusRunning   RecordingTaskStatus = "running"
	RecordingStatusCompleted RecordingTaskStatus = "completed"
	RecordingStatusFailed    RecordingTaskStatus = "failed"
)

// ChunkType selects the instruction payload variant for a recording task.
type ChunkType string

const (
	// ChunkTypeTaskDriven builds a guided payload that both navigates and records.
	ChunkTypeTaskDriven ChunkType = "task_driven"

	// ChunkTypeExploratory builds an open payload that only records.
	ChunkTypeExploratory ChunkType = "exploratory"
)

// RecordingTaskConfig is the typed form of the recording task's JSONB config
// column.
type RecordingTaskConfig struct {
	ChunkType   ChunkType `json:"chunk_type"`
	Instruction string    `json:"instruction,omitempty"`
}

// RecordingTask is the micro unit of work: one per content chunk to be visited
// by the recorder. ChunkID is nullable; a nil ChunkID is a non-retryable
// validation failure at execution time.
//
// Note: a task that exhausts its attempt budget through stale reclaims and one
// that exhausts it through explicit failure marks both land in status=failed
// with no further signal; only last_error tells them apart. Known gap, kept
// deliberately.
type RecordingTask struct {
	ID            uuid.UUID           `json:"id"`
	BuildTaskID   uuid.UUID           `json:"build_task_id"`
	SourceID      uuid.UUID           `json:"source_id"`
	ChunkID       *uuid.UUID          `json:"chunk_id,omitempty"`
	Status        RecordingTaskStatus `json:"status"`
	AttemptCount  int                 `json:"attempt_count"`
	LastHeartbeat *time.Time          `json:"last_heartbeat,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
	Config        RecordingTaskConfig `json:"config"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewRecordingTask creates a pending RecordingTask for the given build task,
// source and chunk. It generates a new UUID and sets timestamps.
func NewRecordingTask(
	buildTaskID, sourceID uuid.UUID,
	chunkID *uuid.UUID,
	config RecordingTaskConfig,
) (*RecordingTask, error) {
	now := time.Now().UTC()
	task := &RecordingTask{
		ID:          uuid.New(),
		BuildTaskID: buildTaskID,
		SourceID:    sourceID,
		ChunkID:     chunkID,
		Status:      RecordingStatusPending,
		Config:      config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the RecordingTask has valid data.
func (t *RecordingTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrRecordingTaskIDEmpty
	}

	if t.BuildTaskID == uuid.Nil {
		return ErrRecordingTaskBuildTaskIDEmpty
	}

	if t.SourceID == uuid.Nil {
		return ErrRecordingTaskSourceIDEmpty
	}

	switch t.Status {
	case RecordingStatusPending, RecordingStatusRunning,
		RecordingStatusCompleted, RecordingStatusFailed:
	default:
		return ErrRecordingTaskStatusInvalid
	}

	return nil
}
