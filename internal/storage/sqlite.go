package storage

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func NewSQLite(dsn string) (Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:hivetrust.db?_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, schema: sqliteSchema}, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS source_measures (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		breeder_id TEXT NOT NULL,
		queen_id TEXT NOT NULL DEFAULT '',
		beekeeper_id TEXT NOT NULL DEFAULT '',
		date_ms INTEGER NOT NULL,
		si REAL,
		bv REAL,
		weight REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_source_measures_breeder ON source_measures(breeder_id, date_ms)`,
	`CREATE TABLE IF NOT EXISTS regional_measures (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		region_id TEXT NOT NULL,
		breeder_id TEXT NOT NULL DEFAULT '',
		queen_id TEXT NOT NULL DEFAULT '',
		beekeeper_id TEXT NOT NULL DEFAULT '',
		date_ms INTEGER NOT NULL,
		si REAL,
		bv REAL,
		honey_kg REAL,
		egg_day REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_regional_measures_region ON regional_measures(region_id, date_ms)`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		rule_json TEXT NOT NULL,
		updated_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_signals (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id TEXT NOT NULL,
		at_ms INTEGER NOT NULL,
		scope TEXT NOT NULL,
		scope_id TEXT NOT NULL DEFAULT '',
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		context_count INTEGER NOT NULL,
		kind TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_signals_rule_at ON alert_signals(rule_id, at_ms)`,
}
