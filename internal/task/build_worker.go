package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
	"github.com/tkassel/actionforge/internal/platform/logger"
)

// BuildWorkerConfig holds the orchestrator's policy knobs.
type BuildWorkerConfig struct {
	// StaleTimeout is the build task staleness window; the heartbeat
	// interval is clamped to at most half of it so at least two heartbeats
	// land before the row could be reclaimed.
	StaleTimeout time.Duration

	// HeartbeatInterval is the configured heartbeat period, before clamping.
	HeartbeatInterval time.Duration

	// RecordingTaskLimit caps how many recording tasks one run generates.
	RecordingTaskLimit int
}

// BuildTaskResult is the outcome of one build task run, consumed by the CLI
// and dashboards.
type BuildTaskResult struct {
	Success                 bool       `json:"success"`
	TaskID                  uuid.UUID  `json:"task_id"`
	RecordingTasksReset     int        `json:"recording_tasks_reset"`
	RecordingTasksCreated   int        `json:"recording_tasks_created"`
	RecordingTasksCompleted int        `json:"recording_tasks_completed"`
	RecordingTasksFailed    int        `json:"recording_tasks_failed"`
	ElementsCreated         int        `json:"elements_created"`
	DurationMs              int64      `json:"duration_ms"`
	Error                   string     `json:"error,omitempty"`
	PublishedVersionID      *uuid.UUID `json:"published_version_id,omitempty"`
}

// BuildWorker is the top-level orchestrator for one poller: claim a build
// task, reset and generate its recording tasks, run the worker pool,
// complete the build task and publish the source version.
type BuildWorker struct {
	scheduler  *BuildScheduler
	recordings *RecordingScheduler
	generator  *Generator
	pool       *WorkerPool
	config     BuildWorkerConfig
	logger     *slog.Logger
}

// NewBuildWorker creates a new BuildWorker.
func NewBuildWorker(
	scheduler *BuildScheduler,
	recordings *RecordingScheduler,
	generator *Generator,
	pool *WorkerPool,
	config BuildWorkerConfig,
	log *slog.Logger,
) *BuildWorker {
	return &BuildWorker{
		scheduler:  scheduler,
		recordings: recordings,
		generator:  generator,
		pool:       pool,
		config:     config,
		logger:     log,
	}
}

// RunOnce claims and processes one build task. Returns (nil, nil) when there
// is no work. Task-level failures are recorded on the row and reported on
// the result; only a failed claim query surfaces as an error.
func (w *BuildWorker) RunOnce(ctx context.Context) (*BuildTaskResult, error) {
	task, err := w.scheduler.ClaimNextActionTask(ctx)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	start := time.Now()
	log := w.logger.With("build_task_id", task.ID)
	ctx = logger.WithLogger(ctx, log)

	log.Info("claimed build task",
		"stage", task.Stage,
		"attempt_count", task.Config.AttemptCount)

	heartbeat := StartHeartbeat(
		w.heartbeatInterval(),
		func(hctx context.Context) error {
			return w.scheduler.UpdateHeartbeat(hctx, task.ID)
		},
		log,
	)
	defer func() {
		heartbeat.Stop()
		w.pool.Shutdown()
	}()

	result := &BuildTaskResult{TaskID: task.ID}

	fail := func(message string) *BuildTaskResult {
		if ferr := w.scheduler.FailTask(context.WithoutCancel(ctx), task.ID, message); ferr != nil {
			log.Error("failed to record build task failure", "error", ferr)
		}
		result.Error = message
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	sourceID, err := task.RequireSourceID()
	if err != nil {
		return fail("build task has no sourceId; knowledge stage did not resolve the source"), nil
	}
	log = log.With("source_id", sourceID)

	reset, err := w.recordings.ResetForBuildTask(ctx, task.ID)
	if err != nil {
		return fail(err.Error()), nil
	}
	result.RecordingTasksReset = reset

	created, err := w.generator.Generate(ctx, task.ID, sourceID, w.config.RecordingTaskLimit)
	if err != nil {
		return fail(err.Error()), nil
	}
	result.RecordingTasksCreated = created

	poolResult, err := w.pool.ExecuteAll(ctx, task.ID, sourceID)
	result.RecordingTasksCompleted = poolResult.Completed
	result.RecordingTasksFailed = poolResult.Failed
	result.ElementsCreated = poolResult.Elements
	if err != nil {
		return fail(err.Error()), nil
	}

	result.DurationMs = time.Since(start).Milliseconds()

	stats := domain.BuildStats{
		RecordingTasksReset:     result.RecordingTasksReset,
		RecordingTasksCreated:   result.RecordingTasksCreated,
		RecordingTasksCompleted: result.RecordingTasksCompleted,
		RecordingTasksFailed:    result.RecordingTasksFailed,
		ElementsCreated:         result.ElementsCreated,
		DurationMs:              result.DurationMs,
	}
	if err := w.scheduler.CompleteTask(ctx, task.ID, stats); err != nil {
		return fail(err.Error()), nil
	}

	// Publication is additive: its failure is logged on the publish result
	// and never flips the completed build task back to failed.
	result.Success = true
	publish := w.scheduler.PublishVersion(ctx, sourceID)
	if publish.Success {
		result.PublishedVersionID = publish.VersionID
	}

	return result, nil
}

// heartbeatInterval clamps the configured interval to half the staleness
// window.
func (w *BuildWorker) heartbeatInterval() time.Duration {
	interval := w.config.HeartbeatInterval
	if half := w.config.StaleTimeout / 2; half > 0 && interval > half {
		return half
	}
	return interval
}
