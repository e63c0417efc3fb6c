// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection settings read from environment variables.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConfigFromEnv reads database config from well-known environment variables,
// falling back to sensible local-development defaults.
func ConfigFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "eventrsvp"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// NewPool creates and validates a pgxpool connection pool for dsn.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	logger := slog.Default().WithGroup("database")

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	err = retry(ctx, connectAttempts, connectWait, func(attempt int) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = p.Ping(ctx); err == nil {
				pool = p
				return nil
			}
			p.Close()
		}
		logger.WarnContext(ctx, "db connect attempt failed", "attempt", attempt, "of", connectAttempts, "error", err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pool, nil
}

const (
	connectAttempts = 5
	connectWait     = 2 * time.Second
)

// retry calls fn up to attempts times, sleeping wait between failures.
// There is no sleep after the last attempt. It returns fn's last error, or
// ctx.Err() when ctx ends first.
func retry(ctx context.Context, attempts int, wait time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                     TEXT PRIMARY KEY,
		slug                   TEXT NOT NULL UNIQUE,
		title                  TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		starts_at              TIMESTAMPTZ,
		capacity_total         INTEGER NOT NULL DEFAULT 0 CHECK (capacity_total >= 0),
		capacity_cocktail_only INTEGER NOT NULL DEFAULT 0 CHECK (capacity_cocktail_only >= 0),
		capacity_dinner        INTEGER NOT NULL DEFAULT 0 CHECK (capacity_dinner >= 0),
		waitlist_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
		max_plus_ones          INTEGER NOT NULL DEFAULT 0 CHECK (max_plus_ones BETWEEN 0 AND 3),
		dinner                 JSONB,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rsvps (
		id                     TEXT PRIMARY KEY,
		event_id               TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
		email                  TEXT NOT NULL,
		name                   TEXT NOT NULL DEFAULT '',
		plus_ones              INTEGER NOT NULL DEFAULT 0 CHECK (plus_ones >= 0),
		party_size             INTEGER NOT NULL CHECK (party_size = plus_ones + 1),
		status                 TEXT NOT NULL,
		wants_dinner           BOOLEAN NOT NULL DEFAULT FALSE,
		dinner_slot            TIMESTAMPTZ,
		dinner_party_size      INTEGER NOT NULL DEFAULT 0,
		dinner_status          TEXT NOT NULL DEFAULT '',
		capacity_overridden    BOOLEAN NOT NULL DEFAULT FALSE,
		dinner_arrived_count   INTEGER NOT NULL DEFAULT 0,
		cocktail_arrived_count INTEGER NOT NULL DEFAULT 0,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (event_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS rsvps_event_status_idx ON rsvps (event_id, status)`,
	`CREATE INDEX IF NOT EXISTS rsvps_event_slot_idx ON rsvps (event_id, dinner_slot)`,
}

// Migrate creates the tables and indexes the postgres store relies on.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
