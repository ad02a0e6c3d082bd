package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hivetrust/internal/anomaly"
	"hivetrust/internal/model"
	"hivetrust/internal/series"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "hivetrust.yaml", `
log_level: debug
trust:
  breeder:
    min_records: 10
    penalty_outliers: true
    si_weight: 0.5
  region_window: 720h
alerts:
  cooldown: 30m
  default_min_records: 4
  rules:
    - id: si-drop
      title: SI drop
      scope: region
      scope_id: north
      metric: si
      mode: ma-delta
      ma_window: 3
      delta_pct: 25
      enabled: true
    - id: bv-cap
      title: BV ceiling
      scope: global
      metric: bv
      mode: threshold
      threshold: 2.5
      min_records: 2
      enabled: true
storage:
  driver: sqlite
  dsn: "file::memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level: %s", cfg.LogLevel)
	}
	if cfg.Trust.Breeder.MinRecords != 10 || !cfg.Trust.Breeder.PenaltyOutliers {
		t.Fatalf("breeder params: %+v", cfg.Trust.Breeder)
	}
	if cfg.Trust.Breeder.SIWeight == nil || *cfg.Trust.Breeder.SIWeight != 0.5 {
		t.Fatalf("si weight not decoded")
	}
	if cfg.Trust.Breeder.BVWeight == nil || *cfg.Trust.Breeder.BVWeight != 0.4 {
		t.Fatalf("bv weight default lost")
	}
	if cfg.Trust.RegionWindow != 720*time.Hour {
		t.Fatalf("region window: %s", cfg.Trust.RegionWindow)
	}
	if cfg.Alerts.Cooldown != 30*time.Minute {
		t.Fatalf("cooldown: %s", cfg.Alerts.Cooldown)
	}
	if len(cfg.Alerts.Rules) != 2 {
		t.Fatalf("rules: %d", len(cfg.Alerts.Rules))
	}
	drop := cfg.Alerts.Rules[0]
	if drop.Mode != model.ModeMADelta || drop.MAWindow == nil || *drop.MAWindow != 3 {
		t.Fatalf("ma rule: %+v", drop)
	}
	if drop.MinRecords != 4 {
		t.Fatalf("rule min records default: %d", drop.MinRecords)
	}
	if cfg.Alerts.Rules[1].MinRecords != 2 {
		t.Fatalf("explicit min records overwritten")
	}
	if cfg.Alerts.StoreLimit != defaultStoreLimit {
		t.Fatalf("store limit default: %d", cfg.Alerts.StoreLimit)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "hivetrust.json", `{"log_level":"warn","api":{"enabled":true,"addr":":9999"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.API.Addr != ":9999" {
		t.Fatalf("json config: %+v", cfg)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage default: %s", cfg.Storage.Driver)
	}
}

func TestLoadRejectsInvalidRule(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
alerts:
  rules:
    - id: broken
      scope: global
      metric: si
      mode: threshold
      enabled: true
`)
	_, err := Load(path)
	if !errors.Is(err, anomaly.ErrMissingThreshold) {
		t.Fatalf("expected missing threshold, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "mongo"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	cfg = DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected kafka error")
	}
	cfg = DefaultConfig()
	rule := model.AlertRule{ID: "x", Scope: model.ScopeGlobal, Metric: "si", Mode: model.ModeZScore}
	cfg.Alerts.Rules = []model.AlertRule{rule, rule}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate rule error, got %v", err)
	}
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateMetricAndTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Rules = []model.AlertRule{{ID: "m", Scope: model.ScopeGlobal, Metric: "varroa", Mode: model.ModeZScore}}
	if err := Validate(cfg); !errors.Is(err, series.ErrUnknownMetric) {
		t.Fatalf("expected unknown metric, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.Ingest.Timezone = "Mars/Olympus"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected timezone error")
	}
	cfg.Ingest.Timezone = "Europe/Ljubljana"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid timezone rejected: %v", err)
	}
}

func TestEmptyFile(t *testing.T) {
	if _, err := Load(writeFile(t, "empty.yaml", "  \n")); err == nil {
		t.Fatalf("expected empty config error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HIVETRUST_STORAGE_DSN", "postgres://db/hive")
	t.Setenv("HIVETRUST_STORAGE_DRIVER", "postgres")
	t.Setenv("HIVETRUST_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HIVETRUST_CONFIG", "")
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://db/hive" {
		t.Fatalf("env storage: %+v", cfg.Storage)
	}
	if len(cfg.Ingest.Kafka.Brokers) != 2 {
		t.Fatalf("env brokers: %v", cfg.Ingest.Kafka.Brokers)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hivetrust.yaml")
	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if mgr.Get().LogLevel != "error" {
		t.Fatalf("saved level lost: %s", mgr.Get().LogLevel)
	}
	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	needs, err := mgr.NeedsReload()
	if err != nil || !needs {
		t.Fatalf("expected reload, got %v %v", needs, err)
	}
	next, err := mgr.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if next.LogLevel != "debug" || mgr.Get().LogLevel != "debug" {
		t.Fatalf("reloaded level: %s", next.LogLevel)
	}
}
