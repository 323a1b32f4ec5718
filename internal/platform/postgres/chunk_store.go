package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/store"
)

// ChunkStore reads crawled content chunks and the denormalized context the
// executor needs to build instruction payloads.
type ChunkStore struct {
	db store.DBTX
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db store.DBTX) *ChunkStore {
	return &ChunkStore{db: db}
}

// GetChunk fetches the chunk joined with its document and source so the
// executor gets the whole payload context in one query. Returns
// store.ErrChunkNotFound if the chunk does not exist.
func (s *ChunkStore) GetChunk(ctx context.Context, chunkID uuid.UUID) (*domain.ChunkContext, error) {
	query := `
		SELECT c.id, c.source_id, d.url, d.title, s.domain, c.content,
		       COALESCE(s.app_url, '')
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN sources s ON s.id = c.source_id
		WHERE c.id = $1
	`

	var chunk domain.ChunkContext
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ChunkID,
		&chunk.SourceID,
		&chunk.DocumentURL,
		&chunk.DocumentTitle,
		&chunk.SourceDomain,
		&chunk.Content,
		&chunk.AppURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk: %w", MapError(err))
	}

	return &chunk, nil
}

// ListChunks returns up to limit chunk references for the source, oldest
// first, for recording task generation.
func (s *ChunkStore) ListChunks(
	ctx context.Context,
	sourceID uuid.UUID,
	limit int,
) ([]domain.ChunkRef, error) {
	query := `
		SELECT id, chunk_type, COALESCE(instruction, '')
		FROM chunks
		WHERE source_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var chunks []domain.ChunkRef
	for rows.Next() {
		var chunk domain.ChunkRef
		if err := rows.Scan(&chunk.ID, &chunk.ChunkType, &chunk.Instruction); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return chunks, nil
}
