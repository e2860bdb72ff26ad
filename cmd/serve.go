package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/askdocs/pkg/dedup"
	"github.com/xhad/askdocs/pkg/orchestrator"
	"github.com/xhad/askdocs/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack, Teams and WebSocket intake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runServer(ctx, a)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serve
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.config
	guards := map[orchestrator.Platform]*dedup.Guard{
		orchestrator.PlatformSlack: dedup.New(dedup.Config{
			Platform:          string(orchestrator.PlatformSlack),
			TTL:               cfg.Dedup.SlackTTL,
			ProcessingTimeout: cfg.Dedup.ProcessingTimeout,
			SweepInterval:     cfg.Dedup.SweepInterval,
			SweepBatch:        cfg.Dedup.SweepBatch,
		}, a.logger, a.metrics),
		orchestrator.PlatformTeams: dedup.New(dedup.Config{
			Platform:          string(orchestrator.PlatformTeams),
			TTL:               cfg.Dedup.TeamsTTL,
			ProcessingTimeout: cfg.Dedup.ProcessingTimeout,
			SweepInterval:     cfg.Dedup.SweepInterval,
			SweepBatch:        cfg.Dedup.SweepBatch,
		}, a.logger, a.metrics),
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	}, a.orchestrator, guards, server.LogDeliverer{Logger: a.logger}, a.store, a.metrics, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	for platform, guard := range guards {
		platform, guard := platform, guard
		g.Go(func() error {
			guard.Start(ctx)
			<-ctx.Done()
			guard.Stop()
			a.logger.Debug("dedup sweeper stopped", zap.String("platform", string(platform)))
			return nil
		})
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})

	err := g.Wait()
	a.logger.Info("server stopped", zap.Error(err))
	return err
}
