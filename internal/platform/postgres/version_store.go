package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/platform/logger"
	"github.com/tkassel/actionforge/internal/store"
)

// VersionStore implements blue/green source version publication using
// PostgreSQL. Publication is transactional: promoting the new version,
// archiving the old one and repointing the source either all happen or none
// do.
type VersionStore struct {
	db *sql.DB
}

// NewVersionStore creates a new VersionStore.
func NewVersionStore(db *sql.DB) *VersionStore {
	return &VersionStore{db: db}
}

// Publish promotes the newest building version of the source to active,
// archives the previously active version and updates the source's current
// version pointer, all in one transaction. Returns
// store.ErrNoBuildingVersion when the source has nothing to publish.
func (s *VersionStore) Publish(
	ctx context.Context,
	sourceID uuid.UUID,
) (*domain.VersionPublication, error) {
	log := logger.FromContext(ctx)

	var publication domain.VersionPublication

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()

		// Lock the newest building version so two publishers cannot both
		// promote it.
		var versionID uuid.UUID
		var versionNumber int
		err := tx.QueryRowContext(ctx, `
			SELECT id, version_number
			FROM source_versions
			WHERE source_id = $1 AND status = 'building'
			ORDER BY version_number DESC
			LIMIT 1
			FOR UPDATE
		`, sourceID).Scan(&versionID, &versionNumber)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNoBuildingVersion
			}
			return fmt.Errorf("failed to find building version: %w", MapError(err))
		}

		// Demote whichever version is currently active. Zero rows is fine:
		// first publication for this source.
		var archivedID uuid.NullUUID
		err = tx.QueryRowContext(ctx, `
			UPDATE source_versions
			SET status = 'archived', updated_at = $2
			WHERE source_id = $1 AND status = 'active'
			RETURNING id
		`, sourceID, now).Scan(&archivedID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to archive active version: %w", MapError(err))
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE source_versions
			SET status = 'active', published_at = $2, updated_at = $2
			WHERE id = $1
		`, versionID, now)
		if err != nil {
			return fmt.Errorf("failed to activate version: %w", MapError(err))
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sources
			SET current_version_id = $2, updated_at = $3
			WHERE id = $1
		`, sourceID, versionID, now)
		if err != nil {
			return fmt.Errorf("failed to update source version pointer: %w", MapError(err))
		}

		publication.VersionID = versionID
		if archivedID.Valid {
			id := archivedID.UUID
			publication.ArchivedVersionID = &id
		}

		log.Info("published source version",
			"source_id", sourceID,
			"version_id", versionID,
			"version_number", versionNumber,
			"archived_version_id", archivedID.UUID)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &publication, nil
}
