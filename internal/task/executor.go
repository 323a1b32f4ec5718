package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
)

// msgTimeoutPartialSave annotates a task that timed out but whose partial
// elements were salvaged and persisted. The task still counts as completed.
const msgTimeoutPartialSave = "timeout_partial_save"

// ExecutorConfig holds the executor's retry and deadline policy.
type ExecutorConfig struct {
	// MaxAttempts is the size of the executor's internal retry loop for
	// transient recorder failures.
	MaxAttempts int

	// RetryBaseDelay is multiplied by the attempt number to produce the
	// backoff before each retry.
	RetryBaseDelay time.Duration

	// RecorderTimeout is the deadline for a single recorder invocation.
	RecorderTimeout time.Duration
}

// DefaultExecutorConfig returns an ExecutorConfig with reasonable defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:     3,
		RetryBaseDelay:  2 * time.Second,
		RecorderTimeout: 8 * time.Minute,
	}
}

// ExecutionResult is the outcome of executing one recording task.
type ExecutionResult struct {
	Success         bool   `json:"success"`
	ElementsCreated int    `json:"elements_created"`
	Error           string `json:"error,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
	Attempts        int    `json:"attempts"`
	PartialSave     bool   `json:"partial_save,omitempty"`
}

// TaskExecutor executes one recording task end-to-end. The worker pool holds
// one per slot.
type TaskExecutor interface {
	Execute(ctx context.Context, task *domain.RecordingTask) *ExecutionResult
}

// Executor is the production TaskExecutor: it validates the task, fetches the
// chunk context, drives the external recorder under a deadline, salvages
// partial results on timeout, retries transient failures with backoff and
// persists discovered elements.
type Executor struct {
	chunks    ChunkStore
	elements  ElementStore
	scheduler *RecordingScheduler
	recorder  Recorder
	config    ExecutorConfig
	logger    *slog.Logger
}

// NewExecutor creates a new Executor. Zero config fields fall back to
// defaults.
func NewExecutor(
	chunks ChunkStore,
	elements ElementStore,
	scheduler *RecordingScheduler,
	recorder Recorder,
	config ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	defaults := DefaultExecutorConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.RecorderTimeout <= 0 {
		config.RecorderTimeout = defaults.RecorderTimeout
	}

	return &Executor{
		chunks:    chunks,
		elements:  elements,
		scheduler: scheduler,
		recorder:  recorder,
		config:    config,
		logger:    logger,
	}
}

// attemptOutcome carries a successful attempt's tallies.
type attemptOutcome struct {
	elementsCreated int
	partialSave     bool
}

// Execute runs the recording task. It never returns an error: every failure
// is recorded on the task row and reported on the result, so one bad task
// can never take down the pool.
func (e *Executor) Execute(ctx context.Context, task *domain.RecordingTask) *ExecutionResult {
	start := time.Now()
	log := e.logger.With("recording_task_id", task.ID)

	result := &ExecutionResult{}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
	}()

	// Missing chunk reference is a data problem; retrying cannot fix it.
	if task.ChunkID == nil || *task.ChunkID == uuid.Nil {
		log.Warn("recording task has no chunk reference")
		e.markFailed(ctx, task.ID, msgChunkIDRequired, log)
		result.Error = msgChunkIDRequired
		return result
	}

	chunk, err := e.chunks.GetChunk(ctx, *task.ChunkID)
	if err != nil {
		msg := fmt.Sprintf("failed to load chunk context: %v", err)
		log.Warn("chunk context unavailable", "chunk_id", *task.ChunkID, "error", err)
		e.markFailed(ctx, task.ID, msg, log)
		result.Error = msg
		return result
	}

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		outcome, err := e.attempt(ctx, task, chunk, attempt, log)
		if err == nil {
			// The completion write must survive a dead caller context, same
			// as the failure path: a salvaged timeout has already persisted
			// its elements, so the status write is the only thing left.
			if merr := e.scheduler.MarkCompleted(context.WithoutCancel(ctx), task.ID); merr != nil {
				// The recording work is done and persisted; a failed status
				// write is logged, not escalated.
				log.Error("failed to mark recording task completed", "error", merr)
			}

			result.Success = true
			result.ElementsCreated = outcome.elementsCreated
			result.PartialSave = outcome.partialSave
			if outcome.partialSave {
				result.Error = msgTimeoutPartialSave
			}

			log.Info("recording task completed",
				"elements_created", outcome.elementsCreated,
				"partial_save", outcome.partialSave,
				"attempts", attempt)
			return result
		}

		if IsRetryable(err) && attempt < e.config.MaxAttempts {
			delay := e.config.RetryBaseDelay * time.Duration(attempt)
			log.Warn("recorder attempt failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err)

			if !sleepCtx(ctx, delay) {
				msg := fmt.Sprintf("cancelled while waiting to retry: %v", err)
				e.markFailed(ctx, task.ID, msg, log)
				result.Error = msg
				return result
			}
			continue
		}

		log.Error("recording task failed",
			"attempt", attempt,
			"retryable", IsRetryable(err),
			"error", err)
		e.markFailed(ctx, task.ID, err.Error(), log)
		result.Error = err.Error()
		return result
	}

	// Unreachable: the loop always returns.
	return result
}

// attempt drives one recorder session: initialize, run under the recorder
// deadline, salvage on timeout, persist elements. The session is closed on
// every exit path.
func (e *Executor) attempt(
	ctx context.Context,
	task *domain.RecordingTask,
	chunk *domain.ChunkContext,
	attempt int,
	log *slog.Logger,
) (attemptOutcome, error) {
	payload := BuildInstructionPayload(chunk, task.Config)

	if err := e.recorder.Initialize(ctx); err != nil {
		return attemptOutcome{}, fmt.Errorf("recorder initialize failed: %w", err)
	}
	defer func() {
		// Cleanup must run even when the attempt's context is already dead.
		if cerr := e.recorder.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("failed to close recorder session", "error", cerr)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.config.RecorderTimeout)
	defer cancel()

	type runReply struct {
		result *RecorderResult
		err    error
	}
	replies := make(chan runReply, 1)
	go func() {
		result, err := e.recorder.Run(runCtx, chunk.StartURL(), payload)
		replies <- runReply{result: result, err: err}
	}()

	// First of {recorder result, deadline} wins; the loser's cleanup still
	// runs through the deferred Close.
	var reply runReply
	select {
	case reply = <-replies:
	case <-runCtx.Done():
		reply = runReply{err: runCtx.Err()}
	}

	if reply.err != nil {
		if IsTimeout(reply.err) {
			return e.salvage(ctx, task, attempt, reply.err, log)
		}
		return attemptOutcome{}, reply.err
	}

	if reply.result == nil || !reply.result.Success {
		return attemptOutcome{}, errors.New("recorder returned an unsuccessful result")
	}

	elements := domain.ElementsFromMap(reply.result.Elements)
	if err := e.elements.Persist(ctx, chunk.ChunkID, elements); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to persist elements: %w", err)
	}

	if reply.result.SavedArtifactPath != "" {
		log.Debug("recorder saved artifact", "path", reply.result.SavedArtifactPath)
	}

	return attemptOutcome{elementsCreated: len(elements)}, nil
}

// salvage pulls whatever partial result the recorder can expose after a
// timeout. A non-empty salvage converts the attempt into a
// completed-with-partial success; otherwise the timeout stands as a failure.
func (e *Executor) salvage(
	ctx context.Context,
	task *domain.RecordingTask,
	attempt int,
	timeoutErr error,
	log *slog.Logger,
) (attemptOutcome, error) {
	salvageCtx := context.WithoutCancel(ctx)

	partial, err := e.recorder.SalvagePartial(salvageCtx)
	if err != nil {
		log.Warn("partial result salvage failed", "attempt", attempt, "error", err)
	}

	if partial == nil || len(partial.Elements) == 0 {
		return attemptOutcome{}, fmt.Errorf("%w after %s: %v",
			ErrRecorderTimeout, e.config.RecorderTimeout, timeoutErr)
	}

	elements := domain.ElementsFromMap(partial.Elements)
	if err := e.elements.Persist(salvageCtx, *task.ChunkID, elements); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to persist salvaged elements: %w", err)
	}

	log.Info("salvaged partial recorder result after timeout",
		"attempt", attempt,
		"elements", len(elements))

	return attemptOutcome{elementsCreated: len(elements), partialSave: true}, nil
}

func (e *Executor) markFailed(ctx context.Context, id uuid.UUID, message string, log *slog.Logger) {
	if err := e.scheduler.MarkFailed(context.WithoutCancel(ctx), id, message); err != nil {
		log.Error("failed to mark recording task failed", "error", err)
	}
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
