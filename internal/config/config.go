package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Recorder RecorderConfig `mapstructure:"recorder" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RecorderConfig points at the external browser recorder service.
type RecorderConfig struct {
	// URL is the base URL of the recorder service.
	URL string `mapstructure:"url" validate:"required,url"`

	// APIKey authenticates against the recorder service, if it requires one.
	APIKey string `mapstructure:"api_key"`
}

// WorkerConfig contains the build worker's scheduling and retry settings.
// Defaults are applied by Load; see defaults.go for the values.
type WorkerConfig struct {
	// Concurrency is the number of recorder sessions one build-task run may
	// drive simultaneously.
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0"`

	// StaleTimeoutMinutes is how old a running row's heartbeat may be before
	// the row is considered stale and reclaimable.
	StaleTimeoutMinutes int `mapstructure:"stale_timeout_minutes" validate:"required,gt=0"`

	// MaxAttempts bounds retries for both build tasks and recording tasks.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// HeartbeatIntervalMs is the base heartbeat interval. The effective
	// build-task interval is clamped to at most half the stale timeout.
	HeartbeatIntervalMs int `mapstructure:"heartbeat_interval_ms" validate:"required,gt=0"`

	// TaskTimeoutMinutes is the hard per-recording-task deadline enforced by
	// the worker pool.
	TaskTimeoutMinutes int `mapstructure:"task_timeout_minutes" validate:"required,gt=0"`

	// BuildTimeoutMinutes is the deadline for a single recorder invocation
	// inside the executor. Keep it below TaskTimeoutMinutes so partial-result
	// salvage has time to run.
	BuildTimeoutMinutes int `mapstructure:"build_timeout_minutes" validate:"required,gt=0"`

	// RecordingTaskLimit caps how many recording tasks one build task
	// generates per run.
	RecordingTaskLimit int `mapstructure:"recording_task_limit" validate:"required,gt=0"`

	// PollIntervalSeconds is how long a poller sleeps when no build task is
	// available.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`

	// Pollers is the number of independent poll loops this process runs.
	Pollers int `mapstructure:"pollers" validate:"required,gt=0"`
}

// StaleTimeout returns the staleness window as a duration.
func (c WorkerConfig) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutMinutes) * time.Minute
}

// HeartbeatInterval returns the configured heartbeat interval, clamped so at
// least two heartbeats land within the staleness window.
func (c WorkerConfig) HeartbeatInterval() time.Duration {
	interval := time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
	if half := c.StaleTimeout() / 2; interval > half {
		return half
	}
	return interval
}

// TaskTimeout returns the hard per-recording-task deadline.
func (c WorkerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMinutes) * time.Minute
}

// BuildTimeout returns the per-recorder-invocation deadline.
func (c WorkerConfig) BuildTimeout() time.Duration {
	return time.Duration(c.BuildTimeoutMinutes) * time.Minute
}

// PollInterval returns the idle poll interval.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
