package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables (prefix ACTIONFORGE_, nested keys joined with _) take
// precedence over values from the config file, which takes precedence over
// defaults. Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("actionforge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/actionforge")

	v.SetEnvPrefix("ACTIONFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults carry the load.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every key so AutomaticEnv can
// bind the corresponding environment variables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("recorder.url", "http://localhost:7333")
	v.SetDefault("recorder.api_key", "")

	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.stale_timeout_minutes", 30)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.heartbeat_interval_ms", 30000)
	v.SetDefault("worker.task_timeout_minutes", 10)
	v.SetDefault("worker.build_timeout_minutes", 8)
	v.SetDefault("worker.recording_task_limit", 100)
	v.SetDefault("worker.poll_interval_seconds", 15)
	v.SetDefault("worker.pollers", 1)
}
