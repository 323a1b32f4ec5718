package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("ACTIONFORGE_DATABASE_URL", "postgres://localhost:5432/actionforge")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 30, cfg.Worker.StaleTimeoutMinutes)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 30000, cfg.Worker.HeartbeatIntervalMs)
	assert.Equal(t, 10, cfg.Worker.TaskTimeoutMinutes)
	assert.Equal(t, 8, cfg.Worker.BuildTimeoutMinutes)
	assert.Equal(t, 100, cfg.Worker.RecordingTaskLimit)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, 1, cfg.Worker.Pollers)
	assert.Equal(t, "http://localhost:7333", cfg.Recorder.URL)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("ACTIONFORGE_DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("ACTIONFORGE_DATABASE_URL", "postgres://localhost:5432/actionforge")
	t.Setenv("ACTIONFORGE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("ACTIONFORGE_WORKER_CONCURRENCY", "5")
	t.Setenv("ACTIONFORGE_WORKER_POLLERS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.Worker.Pollers)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("ACTIONFORGE_DATABASE_URL", "postgres://localhost:5432/actionforge")
	t.Setenv("ACTIONFORGE_SERVER_LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestWorkerConfigDurations(t *testing.T) {
	t.Parallel()

	cfg := WorkerConfig{
		StaleTimeoutMinutes: 30,
		HeartbeatIntervalMs: 30000,
		TaskTimeoutMinutes:  10,
		BuildTimeoutMinutes: 8,
		PollIntervalSeconds: 15,
	}

	assert.Equal(t, 30*time.Minute, cfg.StaleTimeout())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout())
	assert.Equal(t, 8*time.Minute, cfg.BuildTimeout())
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
}

func TestHeartbeatIntervalClampedToHalfStaleTimeout(t *testing.T) {
	t.Parallel()

	cfg := WorkerConfig{
		StaleTimeoutMinutes: 2,
		HeartbeatIntervalMs: int((10 * time.Minute).Milliseconds()),
	}

	assert.Equal(t, time.Minute, cfg.HeartbeatInterval(),
		"at least two heartbeats must land inside the staleness window")
}
