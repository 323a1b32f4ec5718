package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBuildTaskStore implements BuildTaskStore with injectable behavior.
type mockBuildTaskStore struct {
	mu sync.Mutex

	claimFn func() (*domain.BuildTask, error)

	heartbeats  []uuid.UUID
	completed   []uuid.UUID
	lastStats   domain.BuildStats
	failed      []uuid.UUID
	failReasons []string
	maxAttempts int

	completeErr error
	failErr     error
}

func (m *mockBuildTaskStore) ClaimNextActionTask(
	_ context.Context,
	_ time.Duration,
) (*domain.BuildTask, error) {
	if m.claimFn != nil {
		return m.claimFn()
	}
	return nil, store.ErrBuildTaskNotFound
}

func (m *mockBuildTaskStore) UpdateHeartbeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, id)
	return nil
}

func (m *mockBuildTaskStore) CompleteTask(
	_ context.Context,
	id uuid.UUID,
	stats domain.BuildStats,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completed = append(m.completed, id)
	m.lastStats = stats
	return nil
}

func (m *mockBuildTaskStore) FailTask(
	_ context.Context,
	id uuid.UUID,
	message string,
	maxAttempts int,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.failed = append(m.failed, id)
	m.failReasons = append(m.failReasons, message)
	m.maxAttempts = maxAttempts
	return nil
}

// mockRecordingTaskStore implements RecordingTaskStore backed by a queue of
// claimable tasks.
type mockRecordingTaskStore struct {
	mu sync.Mutex

	queue    []*domain.RecordingTask
	claimErr error

	resetCount int
	resetErr   error

	inserted  []*domain.RecordingTask
	insertErr error

	heartbeats []uuid.UUID
	completed  []uuid.UUID
	failed     map[uuid.UUID]string
}

func newMockRecordingTaskStore() *mockRecordingTaskStore {
	return &mockRecordingTaskStore{failed: make(map[uuid.UUID]string)}
}

func (m *mockRecordingTaskStore) InsertPendingTasks(
	_ context.Context,
	tasks []*domain.RecordingTask,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, tasks...)
	// Inserted tasks become claimable, like rows in the real store.
	m.queue = append(m.queue, tasks...)
	return len(tasks), nil
}

func (m *mockRecordingTaskStore) ResetForBuildTask(_ context.Context, _ uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return 0, m.resetErr
	}
	return m.resetCount, nil
}

func (m *mockRecordingTaskStore) ClaimNext(
	_ context.Context,
	_, _ uuid.UUID,
	_ time.Duration,
	_ int,
) (*domain.RecordingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(m.queue) == 0 {
		return nil, store.ErrRecordingTaskNotFound
	}
	task := m.queue[0]
	m.queue = m.queue[1:]
	return task, nil
}

func (m *mockRecordingTaskStore) UpdateHeartbeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, id)
	return nil
}

func (m *mockRecordingTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	// Status writes fail on a dead context, like the real store's do.
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockRecordingTaskStore) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = message
	return nil
}

func (m *mockRecordingTaskStore) completedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

func (m *mockRecordingTaskStore) failedMessage(id uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.failed[id]
	return msg, ok
}

// mockChunkStore implements ChunkStore over fixed data.
type mockChunkStore struct {
	chunks   map[uuid.UUID]*domain.ChunkContext
	refs     []domain.ChunkRef
	getErr   error
	listErr  error
	listLast int
}

func (m *mockChunkStore) GetChunk(_ context.Context, chunkID uuid.UUID) (*domain.ChunkContext, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	chunk, ok := m.chunks[chunkID]
	if !ok {
		return nil, store.ErrChunkNotFound
	}
	return chunk, nil
}

func (m *mockChunkStore) ListChunks(
	_ context.Context,
	_ uuid.UUID,
	limit int,
) ([]domain.ChunkRef, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.listLast = limit
	if len(m.refs) > limit {
		return m.refs[:limit], nil
	}
	return m.refs, nil
}

// mockElementStore records persisted elements per chunk.
type mockElementStore struct {
	mu         sync.Mutex
	persisted  map[uuid.UUID][]domain.ActionElement
	persistErr error
}

func newMockElementStore() *mockElementStore {
	return &mockElementStore{persisted: make(map[uuid.UUID][]domain.ActionElement)}
}

func (m *mockElementStore) Persist(
	_ context.Context,
	chunkID uuid.UUID,
	elements []domain.ActionElement,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistErr != nil {
		return m.persistErr
	}
	m.persisted[chunkID] = append(m.persisted[chunkID], elements...)
	return nil
}

func (m *mockElementStore) count(chunkID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.persisted[chunkID])
}

// mockVersionStore implements VersionStore.
type mockVersionStore struct {
	publication *domain.VersionPublication
	publishErr  error
	published   []uuid.UUID
}

func (m *mockVersionStore) Publish(
	_ context.Context,
	sourceID uuid.UUID,
) (*domain.VersionPublication, error) {
	m.published = append(m.published, sourceID)
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return m.publication, nil
}

// recorderStep scripts one Run invocation of the mock recorder.
type recorderStep struct {
	result *RecorderResult
	err    error
	block  bool // block until the run context is cancelled
}

// mockRecorder implements Recorder with a script of per-attempt steps.
type mockRecorder struct {
	mu sync.Mutex

	steps   []recorderStep
	partial *PartialResult

	initErr     error
	salvageErr  error
	initCalls   int
	runCalls    int
	closeCalls  int
	salvageRuns int
}

func (m *mockRecorder) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	return m.initErr
}

func (m *mockRecorder) Run(
	ctx context.Context,
	_ string,
	_ InstructionPayload,
) (*RecorderResult, error) {
	m.mu.Lock()
	m.runCalls++
	var step recorderStep
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return step.result, step.err
}

func (m *mockRecorder) SalvagePartial(_ context.Context) (*PartialResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.salvageRuns++
	if m.salvageErr != nil {
		return nil, m.salvageErr
	}
	return m.partial, nil
}

func (m *mockRecorder) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// newTestRecordingTask builds a valid claimed recording task pointing at the
// given chunk.
func newTestRecordingTask(buildTaskID, sourceID uuid.UUID, chunkID *uuid.UUID) *domain.RecordingTask {
	now := time.Now().UTC()
	return &domain.RecordingTask{
		ID:          uuid.New(),
		BuildTaskID: buildTaskID,
		SourceID:    sourceID,
		ChunkID:     chunkID,
		Status:      domain.RecordingStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
