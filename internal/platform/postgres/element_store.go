package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/store"
)

// ElementStore persists the page elements the recorder discovers. Writes are
// upserts keyed by (chunk_id, semantic_id), so re-delivery after a retry or a
// partial salvage never produces duplicates.
type ElementStore struct {
	db store.DBTX
}

// NewElementStore creates a new ElementStore.
func NewElementStore(db store.DBTX) *ElementStore {
	return &ElementStore{db: db}
}

// Persist upserts the elements for the given chunk.
func (s *ElementStore) Persist(
	ctx context.Context,
	chunkID uuid.UUID,
	elements []domain.ActionElement,
) error {
	query := `
		INSERT INTO action_elements (id, chunk_id, semantic_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (chunk_id, semantic_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	for _, element := range elements {
		if err := element.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		_, err := s.db.ExecContext(ctx, query,
			uuid.New(),
			chunkID,
			element.SemanticID,
			[]byte(element.Data),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to persist action element: %w", MapError(err))
		}
	}

	return nil
}
