package task

import (
	"context"
	"errors"
	"strings"
)

// Error taxonomy for recording task execution. Validation errors fail a task
// immediately; transient infrastructure errors are retried with backoff;
// timeouts get a partial-result salvage attempt before failing; everything
// else fails the task without crashing the worker.
var (
	// ErrValidation marks non-retryable input problems (missing chunk
	// reference, chunk not found).
	ErrValidation = errors.New("validation error")

	// ErrRecorderTimeout marks a recorder run that hit its deadline with
	// nothing salvageable.
	ErrRecorderTimeout = errors.New("recorder timed out")

	// ErrSchedulerUnavailable marks a failed claim query. It is propagated
	// out of the worker pool only after in-flight tasks have drained.
	ErrSchedulerUnavailable = errors.New("scheduler unavailable")
)

// msgChunkIDRequired is the task-result error for a recording task without a
// chunk reference.
const msgChunkIDRequired = "Chunk ID is required"

// transientMarkers are substrings that identify transient infrastructure
// failures from the recorder or its transport. Matching is case-insensitive.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"socket hang up",
	"target closed",
	"session closed",
	"browser has disconnected",
	"protocol error",
	"websocket",
}

// IsRetryable reports whether the error is worth another attempt. Validation
// errors and timeouts are not; timeouts take the salvage path instead.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || IsTimeout(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether the error represents a deadline being hit.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRecorderTimeout) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
