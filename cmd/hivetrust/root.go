package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hivetrust/internal/alerts"
	"hivetrust/internal/config"
	"hivetrust/internal/engine"
	"hivetrust/internal/logging"
	"hivetrust/internal/metrics"
	"hivetrust/internal/storage"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

// runtime bundles what every subcommand wires from the loaded config.
type runtime struct {
	cfg     *config.Manager
	logger  *slog.Logger
	repo    storage.Repository
	metrics *metrics.Metrics
	alerts  *alerts.Store
	engine  *engine.Engine
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hivetrust",
		Short:         "Trust scoring and anomaly alerts for breeding records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(opts.envFile)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml or json); defaults to $HIVETRUST_CONFIG")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with HIVETRUST_* overrides")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(opts),
		newRankCmd(opts),
		newDetectCmd(opts),
		newImportCmd(opts),
		newInitConfigCmd(),
	)
	return root
}

// loadEnv reads the dotenv file when present; variables already set in the
// environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func newRuntime(ctx context.Context, opts *rootOptions, logOut io.Writer, format string) (*runtime, error) {
	mgr, err := config.NewManager(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if format == "" {
		format = cfg.LogFormat
	}
	logger := logging.New(logOut, level, format)

	repo, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := repo.Init(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	m := metrics.New()
	store := alerts.NewStore(cfg.Alerts.StoreLimit)
	eng := engine.NewEngine(cfg, logger, m, store, repo)
	if err := eng.SeedRules(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return &runtime{cfg: mgr, logger: logger, repo: repo, metrics: m, alerts: store, engine: eng}, nil
}

func (rt *runtime) Close() error {
	return rt.repo.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
