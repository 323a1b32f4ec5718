package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tkassel/actionforge/internal/config"
)

// setupDatabase opens the connection pool and verifies connectivity.
func setupDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Each poller drives Concurrency recorder slots, all heartbeating; leave
	// headroom beyond that.
	maxOpen := cfg.Worker.Pollers*cfg.Worker.Concurrency + 5
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.Worker.Pollers + 1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established", "max_open_conns", maxOpen)
	return db, nil
}
