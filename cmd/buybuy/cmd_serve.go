package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/logging"
	"github.com/MariuszDW/BuyBuy-sub001/internal/server"
	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
	ws "github.com/MariuszDW/BuyBuy-sub001/internal/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	sweepInterval   = 6 * time.Hour
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API and the change feed",
		Long: `Opens the store and serves a JSON API for lists, items and the trash,
a websocket change feed on /ws, health on /health and Prometheus metrics on
/metrics. Scheduled snapshots and trash sweeps run while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Watch.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := ws.NewHub(logging.Component(logger, "websocket"))
			a, err := openApp(ctx, cfg, logger, store.WithNotifier(hub))
			if err != nil {
				return err
			}
			defer a.Close()

			a.backups.Start(ctx, cfg.StorePath, cfg.Backup.Interval, cfg.Backup.Retention)
			defer a.backups.Stop()

			srv := server.New(a.engine, a.shopping, hub, a.registry, server.Options{
				TrashRetention:  cfg.TrashRetention,
				Origins:         cfg.Watch.Origins,
				WritesPerMinute: cfg.Watch.WriteLimit,
			}, logger)

			httpServer := &http.Server{
				Addr:              cfg.Watch.Addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving", "addr", cfg.Watch.Addr, "store", cfg.StorePath)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				sweep(gctx, a, srv)
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config")
	return cmd
}

// sweep purges expired trash and idle rate-limit entries until ctx is done.
func sweep(ctx context.Context, a *app, srv *server.Server) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		res, err := a.shopping.CleanOrphanedItems(ctx, a.cfg.TrashRetention)
		switch {
		case err != nil && ctx.Err() == nil:
			a.logger.Error("trash sweep failed", "error", err)
		case res.Removed > 0:
			a.logger.Info("trash swept", "removed", res.Removed, "images", len(res.ImageIDs))
		}
		if l := srv.Limiter(); l != nil {
			l.Prune()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
