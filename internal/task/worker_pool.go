package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tkassel/actionforge/internal/domain"
)

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// TaskTimeout is the hard deadline for one recording task, enforced by
	// the pool on top of the executor's own recorder deadline.
	TaskTimeout time.Duration

	// HeartbeatInterval is the per-task heartbeat period.
	HeartbeatInterval time.Duration
}

// PoolResult tallies one build-task run.
type PoolResult struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Elements  int `json:"elements"`
}

// workerSlot is one fixed execution slot. Slots are mutated only by the
// pool's control loop, so no mutex is needed.
type workerSlot struct {
	id        int
	executor  TaskExecutor
	busy      bool
	taskID    uuid.UUID
	heartbeat *Heartbeat
}

// settlement is the control-loop message a finished task sends back.
type settlement struct {
	slot     *workerSlot
	success  bool
	elements int
}

// WorkerPool drives the concurrent execution of one build task's recording
// tasks: it claims work as slots free up, races each task against a hard
// timeout, heartbeats running tasks and isolates failures so one bad task
// never stalls the rest. At most len(slots) recorder sessions run at once
// regardless of backlog size.
type WorkerPool struct {
	scheduler *RecordingScheduler
	slots     []*workerSlot
	config    WorkerPoolConfig
	logger    *slog.Logger
}

// NewWorkerPool creates a worker pool with one slot per executor. The number
// of executors is the pool's concurrency.
func NewWorkerPool(
	scheduler *RecordingScheduler,
	executors []TaskExecutor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	slots := make([]*workerSlot, len(executors))
	for i, executor := range executors {
		slots[i] = &workerSlot{id: i, executor: executor}
	}

	return &WorkerPool{
		scheduler: scheduler,
		slots:     slots,
		config:    config,
		logger:    logger,
	}
}

// ExecuteAll claims and executes recording tasks for the build task until
// the backlog is empty, then drains in-flight work and returns the tallies.
//
// A cancelled context stops new claims but lets in-flight recorder sessions
// run to completion or their per-task timeout. A failed claim query drains
// in-flight work (preserving its tallies) and then propagates the error.
func (p *WorkerPool) ExecuteAll(
	ctx context.Context,
	buildTaskID, sourceID uuid.UUID,
) (PoolResult, error) {
	log := p.logger.With("build_task_id", buildTaskID)
	log.Info("worker pool starting", "concurrency", len(p.slots))

	var result PoolResult
	settled := make(chan settlement, len(p.slots))
	inFlight := 0

	drain := func() {
		for inFlight > 0 {
			p.settle(&result, <-settled)
			inFlight--
		}
	}

	for {
		slot := p.idleSlot()
		if slot == nil {
			if inFlight == 0 {
				// No idle slots and nothing running should be impossible
				// with a fixed slot set; bail out rather than spin.
				log.Error("worker pool has no idle slots and no in-flight tasks")
				break
			}
			p.settle(&result, <-settled)
			inFlight--
			continue
		}

		if ctx.Err() != nil {
			drain()
			return result, fmt.Errorf("worker pool stopped: %w", ctx.Err())
		}

		task, err := p.scheduler.ClaimNext(ctx, buildTaskID, sourceID)
		if err != nil {
			log.Error("claim failed, draining in-flight tasks", "error", err)
			drain()
			return result, err
		}
		if task == nil {
			drain()
			break
		}

		slot.busy = true
		slot.taskID = task.ID
		slot.heartbeat = p.startTaskHeartbeat(task.ID)
		inFlight++

		log.Debug("dispatching recording task",
			"recording_task_id", task.ID,
			"slot", slot.id,
			"attempt_count", task.AttemptCount)

		go p.runTask(ctx, slot, task, settled)
	}

	log.Info("worker pool finished",
		"completed", result.Completed,
		"failed", result.Failed,
		"elements", result.Elements)
	return result, nil
}

// runTask executes one task racing it against the pool's hard timeout.
// Runs outside the control loop; it touches the slot only to identify it in
// the settlement message.
func (p *WorkerPool) runTask(
	ctx context.Context,
	slot *workerSlot,
	task *domain.RecordingTask,
	settled chan<- settlement,
) {
	// Detach from caller cancellation: graceful shutdown must let this task
	// finish or hit its own timeout.
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.TaskTimeout)
	defer cancel()

	results := make(chan *ExecutionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("executor panicked",
					"recording_task_id", task.ID,
					"panic", r)
				results <- &ExecutionResult{Error: fmt.Sprintf("executor panic: %v", r)}
			}
		}()
		results <- slot.executor.Execute(taskCtx, task)
	}()

	select {
	case res := <-results:
		settled <- settlement{slot: slot, success: res.Success, elements: res.ElementsCreated}

	case <-taskCtx.Done():
		msg := fmt.Sprintf("recording task timed out after %s", p.config.TaskTimeout)
		p.logger.Warn("recording task hit pool timeout",
			"recording_task_id", task.ID,
			"timeout", p.config.TaskTimeout)
		if err := p.scheduler.MarkFailed(context.WithoutCancel(ctx), task.ID, msg); err != nil {
			p.logger.Error("failed to mark timed-out task failed",
				"recording_task_id", task.ID,
				"error", err)
		}
		settled <- settlement{slot: slot}
	}
}

// settle stops the slot's heartbeat, frees the slot and records the tally.
// Called only from the control loop.
func (p *WorkerPool) settle(result *PoolResult, s settlement) {
	if s.slot.heartbeat != nil {
		s.slot.heartbeat.Stop()
		s.slot.heartbeat = nil
	}
	s.slot.busy = false
	s.slot.taskID = uuid.Nil

	if s.success {
		result.Completed++
		result.Elements += s.elements
	} else {
		result.Failed++
	}
}

func (p *WorkerPool) idleSlot() *workerSlot {
	for _, slot := range p.slots {
		if !slot.busy {
			return slot
		}
	}
	return nil
}

func (p *WorkerPool) startTaskHeartbeat(taskID uuid.UUID) *Heartbeat {
	return StartHeartbeat(
		p.config.HeartbeatInterval,
		func(ctx context.Context) error {
			return p.scheduler.UpdateHeartbeat(ctx, taskID)
		},
		p.logger.With("recording_task_id", taskID),
	)
}

// Shutdown stops any heartbeat still attached to a slot. ExecuteAll settles
// every task it dispatches, so this only matters on abnormal exits; it is
// idempotent and safe to run unconditionally.
func (p *WorkerPool) Shutdown() {
	for _, slot := range p.slots {
		if slot.heartbeat != nil {
			slot.heartbeat.Stop()
			slot.heartbeat = nil
		}
		slot.busy = false
		slot.taskID = uuid.Nil
	}
}
