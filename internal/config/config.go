package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"hivetrust/internal/anomaly"
	"hivetrust/internal/model"
	"hivetrust/internal/series"
	"hivetrust/internal/trust"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Trust     TrustConfig   `json:"trust" yaml:"trust"`
	Alerts    AlertsConfig  `json:"alerts" yaml:"alerts"`
	Ingest    IngestConfig  `json:"ingest" yaml:"ingest"`
	API       APIConfig     `json:"api" yaml:"api"`
	Storage   StorageConfig `json:"storage" yaml:"storage"`
	Metrics   MetricsConfig `json:"metrics" yaml:"metrics"`
}

type TrustConfig struct {
	Breeder trust.BreederParams `json:"breeder" yaml:"breeder"`
	Region  trust.RegionParams  `json:"region" yaml:"region"`
	// RegionWindow limits regional scorecards to measurements this recent.
	RegionWindow time.Duration `json:"region_window" yaml:"region_window"`
}

type AlertsConfig struct {
	StoreLimit        int               `json:"store_limit" yaml:"store_limit"`
	Cooldown          time.Duration     `json:"cooldown" yaml:"cooldown"`
	DedupeWindow      time.Duration     `json:"dedupe_window" yaml:"dedupe_window"`
	EvaluateInterval  time.Duration     `json:"evaluate_interval" yaml:"evaluate_interval"`
	Lookback          time.Duration     `json:"lookback" yaml:"lookback"`
	DefaultMinRecords int               `json:"default_min_records" yaml:"default_min_records"`
	Rules             []model.AlertRule `json:"rules" yaml:"rules"`
}

type IngestConfig struct {
	// Timezone applies to payload dates that carry no offset.
	Timezone string      `json:"timezone" yaml:"timezone"`
	REST     RESTConfig  `json:"rest" yaml:"rest"`
	Kafka    KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

const (
	defaultStoreLimit        = 1000
	defaultMinRecords        = 5
	defaultEvaluateInterval  = 5 * time.Minute
	defaultLookback          = 365 * 24 * time.Hour
	defaultMetricsPath       = "/metrics"
	defaultSQLiteDSN         = "file:hivetrust.db?_pragma=busy_timeout(5000)"
	envPrefix                = "HIVETRUST_"
	defaultConfigFileEnvName = envPrefix + "CONFIG"
)

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Trust: TrustConfig{
			Breeder: trust.BreederParams{
				MinRecords:          trust.DefaultBreederMinRecords,
				MinSources:          trust.DefaultBreederMinSources,
				RecencyHalfLifeDays: trust.DefaultBreederHalfLifeDays,
				SIWeight:            model.Float(trust.DefaultSIWeight),
				BVWeight:            model.Float(trust.DefaultBVWeight),
			},
			Region: trust.RegionParams{
				MinRecords:          trust.DefaultRegionMinRecords,
				MinSources:          trust.DefaultRegionMinSources,
				RecencyHalfLifeDays: trust.DefaultRegionHalfLifeDays,
			},
		},
		Alerts: AlertsConfig{
			StoreLimit:        defaultStoreLimit,
			Cooldown:          time.Hour,
			DedupeWindow:      24 * time.Hour,
			EvaluateInterval:  defaultEvaluateInterval,
			Lookback:          defaultLookback,
			DefaultMinRecords: defaultMinRecords,
		},
		Ingest: IngestConfig{
			REST:  RESTConfig{Enabled: true, Addr: ":8090"},
			Kafka: KafkaConfig{Enabled: false},
		},
		API:     APIConfig{Enabled: true, Addr: ":8091"},
		Storage: StorageConfig{Driver: "sqlite", DSN: defaultSQLiteDSN},
		Metrics: MetricsConfig{Enabled: true, Path: defaultMetricsPath},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set and falls back to the defaults
// (with environment overrides) otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(defaultConfigFileEnvName)
	}
	if path != "" {
		return Load(path)
	}
	cfg := DefaultConfig()
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides file settings with HIVETRUST_* variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(envPrefix + "API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Ingest.Kafka.Brokers = strings.Split(v, ",")
	}
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = defaultStoreLimit
	}
	if cfg.Alerts.EvaluateInterval <= 0 {
		cfg.Alerts.EvaluateInterval = defaultEvaluateInterval
	}
	if cfg.Alerts.Lookback <= 0 {
		cfg.Alerts.Lookback = defaultLookback
	}
	if cfg.Alerts.DefaultMinRecords <= 0 {
		cfg.Alerts.DefaultMinRecords = defaultMinRecords
	}
	for i := range cfg.Alerts.Rules {
		if cfg.Alerts.Rules[i].MinRecords == 0 {
			cfg.Alerts.Rules[i].MinRecords = cfg.Alerts.DefaultMinRecords
		}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = defaultSQLiteDSN
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Ingest.Timezone); err != nil {
			return fmt.Errorf("ingest.timezone: %w", err)
		}
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	b := cfg.Trust.Breeder
	if b.MinRecords < 0 || b.MinSources < 0 || b.RecencyHalfLifeDays < 0 {
		return errors.New("trust.breeder thresholds must not be negative")
	}
	r := cfg.Trust.Region
	if r.MinRecords < 0 || r.MinSources < 0 || r.RecencyHalfLifeDays < 0 {
		return errors.New("trust.region thresholds must not be negative")
	}
	seen := make(map[string]struct{}, len(cfg.Alerts.Rules))
	for _, rule := range cfg.Alerts.Rules {
		if rule.ID == "" {
			return errors.New("alerts.rules entries require an id")
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("alerts.rules: duplicate id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if err := anomaly.Validate(rule); err != nil {
			return fmt.Errorf("alerts.rules: %w", err)
		}
		if !series.ValidMetric(rule.Metric) {
			return fmt.Errorf("alerts.rules: rule %q: %w: %q", rule.ID, series.ErrUnknownMetric, rule.Metric)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}
