package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SourceVersion validation errors
var (
	// ErrSourceVersionIDEmpty is returned when a source version ID is empty or nil.
	ErrSourceVersionIDEmpty = errors.New("source version ID cannot be empty")

	// ErrSourceVersionSourceIDEmpty is returned when a source version's source ID is empty.
	ErrSourceVersionSourceIDEmpty = errors.New("source version source ID cannot be empty")

	// ErrSourceVersionStatusInvalid is returned when a source version has an unknown status.
	ErrSourceVersionStatusInvalid = errors.New("source version status is invalid")
)

// SourceVersionStatus represents the blue/green state of a source version.
type SourceVersionStatus string

// Possible source version status values. At most one version per source may
// be active at a time; publication atomically promotes the newest building
// version and archives the previously active one.
const (
	VersionStatusBuilding SourceVersionStatus = "building"
	VersionStatusActive   SourceVersionStatus = "active"
	VersionStatusArchived SourceVersionStatus = "archived"
)

// SourceVersion is the blue/green unit: a complete snapshot of a source's
// built knowledge, identified by a per-source monotonic version number.
type SourceVersion struct {
	ID            uuid.UUID           `json:"id"`
	SourceID      uuid.UUID           `json:"source_id"`
	VersionNumber int                 `json:"version_number"`
	Status        SourceVersionStatus `json:"status"`
	PublishedAt   *time.Time          `json:"published_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// VersionPublication describes a completed blue/green publication: the newly
// active version and, when a previous version was active, the one archived in
// the same step.
type VersionPublication struct {
	VersionID         uuid.UUID  `json:"version_id"`
	ArchivedVersionID *uuid.UUID `json:"archived_version_id,omitempty"`
}

// Validate checks if the SourceVersion has valid data.
func (v *SourceVersion) Validate() error {
	if v.ID == uuid.Nil {
		return ErrSourceVersionIDEmpty
	}

	if v.SourceID == uuid.Nil {
		return ErrSourceVersionSourceIDEmpty
	}

	switch v.Status {
	case VersionStatusBuilding, VersionStatusActive, VersionStatusArchived:
	default:
		return ErrSourceVersionStatusInvalid
	}

	return nil
}
