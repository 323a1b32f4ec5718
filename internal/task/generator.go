package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
)

// Generator expands a build task's content chunks into pending recording
// tasks. Generation is idempotent: a chunk already represented for the build
// task is skipped, so calling it after a full reset creates no duplicates.
type Generator struct {
	chunks ChunkStore
	tasks  RecordingTaskStore
	logger *slog.Logger
}

// NewGenerator creates a new Generator.
func NewGenerator(chunks ChunkStore, tasks RecordingTaskStore, logger *slog.Logger) *Generator {
	return &Generator{
		chunks: chunks,
		tasks:  tasks,
		logger: logger,
	}
}

// Generate reads up to limit chunks for the source and inserts one pending
// recording task per chunk not already represented for this build task.
// Returns the number of tasks actually created.
func (g *Generator) Generate(
	ctx context.Context,
	buildTaskID, sourceID uuid.UUID,
	limit int,
) (int, error) {
	chunks, err := g.chunks.ListChunks(ctx, sourceID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks for source: %w", err)
	}

	if len(chunks) == 0 {
		g.logger.Warn("source has no chunks to record",
			"build_task_id", buildTaskID,
			"source_id", sourceID)
		return 0, nil
	}

	tasks := make([]*domain.RecordingTask, 0, len(chunks))
	for _, chunk := range chunks {
		chunkID := chunk.ID
		task, err := domain.NewRecordingTask(buildTaskID, sourceID, &chunkID, domain.RecordingTaskConfig{
			ChunkType:   chunk.ChunkType,
			Instruction: chunk.Instruction,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to build recording task for chunk %s: %w", chunk.ID, err)
		}
		tasks = append(tasks, task)
	}

	created, err := g.tasks.InsertPendingTasks(ctx, tasks)
	if err != nil {
		return created, fmt.Errorf("failed to insert recording tasks: %w", err)
	}

	g.logger.Info("generated recording tasks",
		"build_task_id", buildTaskID,
		"source_id", sourceID,
		"chunks", len(chunks),
		"created", created)

	return created, nil
}
