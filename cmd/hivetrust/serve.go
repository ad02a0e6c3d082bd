package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hivetrust/internal/api"
	"hivetrust/internal/config"
	"hivetrust/internal/ingest"
)

const configWatchInterval = 3 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, measurement ingest and periodic rule evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(ctx, opts, cmd.ErrOrStderr(), "")
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger
	logger.Info("hivetrust starting", "version", version, "config", rt.cfg.Path(), "storage", rt.cfg.Get().Storage.Driver)

	sink := ingest.NewSink(rt.repo, rt.metrics, logger)
	ingest.StartREST(ctx, rt.cfg, sink, logger)
	ingest.StartKafka(ctx, rt.cfg, sink, logger)
	api.Start(ctx, api.NewServer(rt.cfg, rt.metrics, rt.alerts, rt.repo, rt.engine, logger, version))
	rt.engine.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.cfg.Watch(configWatchInterval,
			func(cfg *config.Config) {
				rt.engine.UpdateConfig(cfg)
				if err := rt.engine.SeedRules(gctx); err != nil {
					logger.Error("reseed rules failed", "err", err)
				}
				logger.Info("config reloaded", "path", rt.cfg.Path())
			},
			func(err error) {
				logger.Error("config reload failed", "err", err)
			},
			gctx.Done(),
		)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("hivetrust stopping")
		return nil
	})
	return g.Wait()
}
