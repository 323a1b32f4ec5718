package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkassel/actionforge/internal/domain"
)

// stubExecutor lets pool tests script task outcomes without a real recorder.
type stubExecutor struct {
	fn func(ctx context.Context, task *domain.RecordingTask) *ExecutionResult
}

func (s *stubExecutor) Execute(ctx context.Context, task *domain.RecordingTask) *ExecutionResult {
	return s.fn(ctx, task)
}

func stubExecutors(n int, fn func(ctx context.Context, task *domain.RecordingTask) *ExecutionResult) []TaskExecutor {
	executors := make([]TaskExecutor, n)
	for i := range executors {
		executors[i] = &stubExecutor{fn: fn}
	}
	return executors
}

func poolFixture(
	store *mockRecordingTaskStore,
	executors []TaskExecutor,
	cfg WorkerPoolConfig,
) *WorkerPool {
	scheduler := NewRecordingScheduler(store, RecordingSchedulerConfig{
		StaleTimeout: time.Minute,
		MaxAttempts:  3,
	}, testLogger())
	return NewWorkerPool(scheduler, executors, cfg, testLogger())
}

func queueTasks(store *mockRecordingTaskStore, buildTaskID, sourceID uuid.UUID, n int) {
	for i := 0; i < n; i++ {
		chunkID := uuid.New()
		store.queue = append(store.queue, newTestRecordingTask(buildTaskID, sourceID, &chunkID))
	}
}

func TestWorkerPoolExecutesAllTasks(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 7)

	var executed atomic.Int32
	pool := poolFixture(store, stubExecutors(3, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		executed.Add(1)
		return &ExecutionResult{Success: true, ElementsCreated: 2}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: 10 * time.Millisecond})

	result, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.NoError(t, err)
	assert.Equal(t, int32(7), executed.Load())
	assert.Equal(t, 7, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 14, result.Elements)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 10)

	var inFlight, peak atomic.Int32
	pool := poolFixture(store, stubExecutors(2, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: time.Second})

	result, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.NoError(t, err)
	assert.Equal(t, 10, result.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(2), "never more tasks in flight than slots")
}

func TestWorkerPoolTalliesFailures(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 4)

	var calls atomic.Int32
	pool := poolFixture(store, stubExecutors(2, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		if calls.Add(1)%2 == 0 {
			return &ExecutionResult{Error: "recorder failed"}
		}
		return &ExecutionResult{Success: true, ElementsCreated: 1}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: time.Second})

	result, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.Elements)
}

func TestWorkerPoolDrainsAndPropagatesClaimFailure(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	store.claimErr = errors.New("connection refused")
	buildTaskID, sourceID := uuid.New(), uuid.New()

	pool := poolFixture(store, stubExecutors(2, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: time.Second})

	_, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchedulerUnavailable)
}

func TestWorkerPoolStopsClaimingOnCancelledContext(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var executed atomic.Int32
	pool := poolFixture(store, stubExecutors(2, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		executed.Add(1)
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: time.Second})

	_, err := pool.ExecuteAll(ctx, buildTaskID, sourceID)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, executed.Load(), "no task may start after cancellation")
	assert.Len(t, store.queue, 5, "backlog stays claimable for the next run")
}

func TestWorkerPoolEnforcesTaskTimeout(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 1)
	timedOut := store.queue[0].ID

	pool := poolFixture(store, stubExecutors(1, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		// Outlast the pool deadline so the timeout branch settles the slot.
		time.Sleep(500 * time.Millisecond)
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: 20 * time.Millisecond, HeartbeatInterval: time.Second})

	result, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	msg, ok := store.failedMessage(timedOut)
	require.True(t, ok, "pool marks the timed-out task failed")
	assert.Contains(t, msg, "timed out")
}

func TestWorkerPoolIsolatesExecutorPanics(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 3)

	var calls atomic.Int32
	pool := poolFixture(store, stubExecutors(1, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		if calls.Add(1) == 1 {
			panic("recorder driver blew up")
		}
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: time.Second})

	result, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Completed, "remaining tasks still run after a panic")
}

func TestWorkerPoolHeartbeatsRunningTasks(t *testing.T) {
	t.Parallel()

	store := newMockRecordingTaskStore()
	buildTaskID, sourceID := uuid.New(), uuid.New()
	queueTasks(store, buildTaskID, sourceID, 1)

	pool := poolFixture(store, stubExecutors(1, func(_ context.Context, _ *domain.RecordingTask) *ExecutionResult {
		time.Sleep(50 * time.Millisecond)
		return &ExecutionResult{Success: true}
	}), WorkerPoolConfig{TaskTimeout: time.Second, HeartbeatInterval: 5 * time.Millisecond})

	_, err := pool.ExecuteAll(context.Background(), buildTaskID, sourceID)
	require.NoError(t, err)

	store.mu.Lock()
	beats := len(store.heartbeats)
	store.mu.Unlock()
	assert.GreaterOrEqual(t, beats, 2, "long tasks heartbeat while running")
}
