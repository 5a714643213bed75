package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/compresolver/internal/preview"
	"github.com/aevon-lab/compresolver/internal/reconcile"
	"github.com/aevon-lab/compresolver/internal/server"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only resolution preview API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := global.load()
			if err != nil {
				return err
			}
			dispose, err := reconcile.ParseDisposeMode(cfg.Resolver.Dispose)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()

			svc := preview.NewService(b.stores, cfg.Layout, loadOptions(cfg), dispose, logger)
			if err := svc.Reload(ctx); err != nil {
				return err
			}

			srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), b.health, cfg.Server.Mode)
			svc.RegisterRoutes(srv.Engine)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return preview.NewRefresher(cfg.Server.ReloadInterval, svc).Start(gctx)
			})
			g.Go(func() error {
				if err := srv.Run(gctx); err != nil {
					return fmt.Errorf("server stopped with error: %w", err)
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}
}
