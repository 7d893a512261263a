package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/ingestion"
)

// ErrNotMigrated is returned by HealthCheck when the schema has not been applied.
var ErrNotMigrated = errors.New("database: schema not migrated")

// Config holds the pool settings for the article store.
type Config struct {
	URL             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	// StartupRetry covers PostgreSQL still starting when the service boots.
	StartupRetry ingestion.RetryPolicy
}

// DefaultConfig returns the pool used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxOpen:         20,
		MaxIdle:         5,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
		StartupRetry: ingestion.RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Multiplier:  2,
			Jitter:      true,
		},
	}
}

// ConfigFrom sizes the pool for a collection pass: every concurrent source pipeline
// inserts on its own connection, plus one each for the API and the retention job.
func ConfigFrom(cfg config.Config) Config {
	c := DefaultConfig()
	c.URL = cfg.Database.URL
	if cfg.Database.MaxConnections > 0 {
		c.MaxOpen = cfg.Database.MaxConnections
	}
	if cfg.Collection.MaxConcurrent > 0 {
		c.MaxIdle = cfg.Collection.MaxConcurrent + 2
	}
	c.MaxIdle = min(c.MaxIdle, c.MaxOpen)
	return c
}

// Connect opens the pool and waits for the first successful ping.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = ingestion.Retry(ctx, cfg.StartupRetry, func(int) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return ingestion.NewRetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// HealthCheck reports whether the database answers and carries the article schema.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var migrated bool
	err := db.QueryRowContext(ctx, `
		SELECT to_regclass('schema_migrations') IS NOT NULL
		   AND to_regclass('articles') IS NOT NULL
	`).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !migrated {
		return ErrNotMigrated
	}
	return nil
}

// RegisterPoolMetrics exports the pool statistics (open, in use, idle, waits) on reg.
func RegisterPoolMetrics(reg prometheus.Registerer, db *sql.DB) error {
	if err := reg.Register(collectors.NewDBStatsCollector(db, "newsdesk")); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	return nil
}
