package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pushlytics/api/logging"
)

// EventColumns is the insert column order shared by both event tables.
var EventColumns = []string{
	"event_id", "org_id", "site_id", "event_type", "event_name",
	"user_id", "session_id", "properties", "occurred_at",
}

var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id    String,
		org_id      String,
		site_id     String,
		event_type  LowCardinality(String),
		event_name  String,
		user_id     String,
		session_id  String,
		properties  Map(String, String),
		occurred_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(occurred_at)
	ORDER BY (org_id, occurred_at, user_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id    TEXT PRIMARY KEY,
		org_id      TEXT NOT NULL,
		site_id     TEXT,
		event_type  TEXT NOT NULL,
		event_name  TEXT NOT NULL DEFAULT '',
		user_id     TEXT,
		session_id  TEXT,
		properties  JSONB NOT NULL DEFAULT '{}'::jsonb,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_org_time_idx ON events (org_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS events_org_user_idx ON events (org_id, user_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS funnels (
		id            UUID PRIMARY KEY,
		org_id        TEXT NOT NULL,
		name          TEXT NOT NULL,
		window_hours  INTEGER NOT NULL DEFAULT 0,
		window_policy TEXT NOT NULL DEFAULT '',
		steps         JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS funnels_org_idx ON funnels (org_id)`,
}

type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// EnsureClickHouseSchema creates the columnar events table if it is missing.
func EnsureClickHouseSchema(ctx context.Context, conn driver.Conn) error {
	return ensureClickHouse(ctx, conn)
}

func ensureClickHouse(ctx context.Context, conn execer) error {
	for _, stmt := range clickhouseSchema {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply clickhouse schema: %w", err)
		}
	}
	logging.Info().Int("statements", len(clickhouseSchema)).Msg("clickhouse schema ensured")
	return nil
}

// EnsurePostgresSchema creates the row-store events and funnels tables if they
// are missing.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply postgres schema: %w", err)
		}
	}
	logging.Info().Int("statements", len(postgresSchema)).Msg("postgres schema ensured")
	return nil
}
