// Package main implements the actionforge build worker: a poller process
// that claims build tasks, fans their content chunks out to recording tasks,
// drives the external browser recorder with bounded concurrency and
// publishes the resulting source versions.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tkassel/actionforge/internal/config"
	"github.com/tkassel/actionforge/internal/platform/logger"
	"github.com/tkassel/actionforge/internal/platform/postgres"
	"github.com/tkassel/actionforge/internal/recorder"
	"github.com/tkassel/actionforge/internal/task"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		log.Fatalf("worker exited with error: %v", err)
	}
}

func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)
	appLogger.Info("configuration loaded",
		"log_level", cfg.Server.LogLevel,
		"concurrency", cfg.Worker.Concurrency,
		"pollers", cfg.Worker.Pollers,
		"poll_interval", cfg.Worker.PollInterval())

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			appLogger.Error("failed to close database", "error", cerr)
		}
	}()

	if migrateCmd != "" {
		return runMigrations(db, migrateCmd, appLogger)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Worker.Pollers; i++ {
		runner := buildRunner(cfg, db, appLogger.With("poller", i))
		group.Go(func() error {
			return runner.Run(ctx)
		})
	}

	appLogger.Info("worker started", "pollers", cfg.Worker.Pollers)
	if err := group.Wait(); err != nil {
		return fmt.Errorf("poller failed: %w", err)
	}

	appLogger.Info("worker stopped")
	return nil
}

// buildRunner wires one poller's full dependency graph: stores, schedulers,
// executors (one recorder client per slot) and the poll loop.
func buildRunner(cfg *config.Config, db *sql.DB, log *slog.Logger) *task.Runner {
	buildTasks := postgres.NewBuildTaskStore(db)
	recordingTasks := postgres.NewRecordingTaskStore(db)
	chunks := postgres.NewChunkStore(db)
	elements := postgres.NewElementStore(db)
	versions := postgres.NewVersionStore(db)

	buildScheduler := task.NewBuildScheduler(buildTasks, versions, task.BuildSchedulerConfig{
		StaleTimeout: cfg.Worker.StaleTimeout(),
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}, log)

	recordingScheduler := task.NewRecordingScheduler(recordingTasks, task.RecordingSchedulerConfig{
		StaleTimeout: cfg.Worker.StaleTimeout(),
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}, log)

	generator := task.NewGenerator(chunks, recordingTasks, log)

	executors := make([]task.TaskExecutor, cfg.Worker.Concurrency)
	for i := range executors {
		client := recorder.NewClient(cfg.Recorder.URL, cfg.Recorder.APIKey)
		executors[i] = task.NewExecutor(chunks, elements, recordingScheduler, client,
			task.ExecutorConfig{
				MaxAttempts:     cfg.Worker.MaxAttempts,
				RecorderTimeout: cfg.Worker.BuildTimeout(),
			}, log.With("slot", i))
	}

	pool := task.NewWorkerPool(recordingScheduler, executors, task.WorkerPoolConfig{
		TaskTimeout:       cfg.Worker.TaskTimeout(),
		HeartbeatInterval: cfg.Worker.HeartbeatInterval(),
	}, log)

	worker := task.NewBuildWorker(buildScheduler, recordingScheduler, generator, pool,
		task.BuildWorkerConfig{
			StaleTimeout:       cfg.Worker.StaleTimeout(),
			HeartbeatInterval:  cfg.Worker.HeartbeatInterval(),
			RecordingTaskLimit: cfg.Worker.RecordingTaskLimit,
		}, log)

	return task.NewRunner(worker, task.RunnerConfig{
		PollInterval: cfg.Worker.PollInterval(),
	}, log)
}
