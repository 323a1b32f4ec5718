package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is the generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., two recording tasks for the same chunk
	// within one build task).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrBuildTaskNotFound indicates that the requested build task does not exist.
	ErrBuildTaskNotFound = fmt.Errorf("%w: build task", ErrNotFound)

	// ErrRecordingTaskNotFound indicates that the requested recording task does not exist.
	ErrRecordingTaskNotFound = fmt.Errorf("%w: recording task", ErrNotFound)

	// ErrChunkNotFound indicates that the requested chunk does not exist.
	ErrChunkNotFound = fmt.Errorf("%w: chunk", ErrNotFound)

	// ErrNoBuildingVersion indicates that the source has no version in
	// "building" status to publish.
	ErrNoBuildingVersion = fmt.Errorf("%w: building source version", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
