package storage

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

func NewPostgres(dsn string) (Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/hivetrust?sslmode=disable"
	}
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, schema: postgresSchema}, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS source_measures (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		breeder_id TEXT NOT NULL,
		queen_id TEXT NOT NULL DEFAULT '',
		beekeeper_id TEXT NOT NULL DEFAULT '',
		date_ms BIGINT NOT NULL,
		si DOUBLE PRECISION,
		bv DOUBLE PRECISION,
		weight DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_source_measures_breeder ON source_measures(breeder_id, date_ms)`,
	`CREATE TABLE IF NOT EXISTS regional_measures (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		region_id TEXT NOT NULL,
		breeder_id TEXT NOT NULL DEFAULT '',
		queen_id TEXT NOT NULL DEFAULT '',
		beekeeper_id TEXT NOT NULL DEFAULT '',
		date_ms BIGINT NOT NULL,
		si DOUBLE PRECISION,
		bv DOUBLE PRECISION,
		honey_kg DOUBLE PRECISION,
		egg_day DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_regional_measures_region ON regional_measures(region_id, date_ms)`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		rule_json JSONB NOT NULL,
		updated_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_signals (
		seq BIGSERIAL PRIMARY KEY,
		rule_id TEXT NOT NULL,
		at_ms BIGINT NOT NULL,
		scope TEXT NOT NULL,
		scope_id TEXT NOT NULL DEFAULT '',
		metric TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		context_count INTEGER NOT NULL,
		kind TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_signals_rule_at ON alert_signals(rule_id, at_ms)`,
}
