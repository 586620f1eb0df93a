package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MariuszDW/BuyBuy-sub001/internal/backup"
	"github.com/MariuszDW/BuyBuy-sub001/internal/config"
	"github.com/MariuszDW/BuyBuy-sub001/internal/logging"
	"github.com/MariuszDW/BuyBuy-sub001/internal/metrics"
	"github.com/MariuszDW/BuyBuy-sub001/internal/migrate"
	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app is an opened, migrated store with its write queue running.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backups  *backup.Manager
	registry *prometheus.Registry
	engine   *store.Engine
	writer   *store.Serializer
	shopping *store.ShoppingStore
}

func loadConfig(flags *globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.storePath != "" {
		cfg.StorePath = flags.storePath
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, logging.Setup(cfg.Log.Level, cfg.Log.Format), nil
}

func newBackupManager(cfg *config.Config, logger *slog.Logger) *backup.Manager {
	return backup.NewManager(backup.Config{
		Dir:        cfg.Backup.Dir,
		Passphrase: cfg.Backup.Passphrase,
		S3:         cfg.Backup.S3,
	}, backup.WithLogger(logging.Component(logger, "backup")))
}

func newPipeline(backups *backup.Manager, logger *slog.Logger) *migrate.Pipeline {
	return migrate.NewPipeline(migrate.NewSQLiteStore(),
		migrate.WithLogger(logging.Component(logger, "migrate")),
		migrate.WithBeforeMigrate(backups.BeforeMigrate),
	)
}

// openApp migrates the store if needed, opens it and starts the write
// queue. Callers must Close the result.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...store.ShoppingOption) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	backups := newBackupManager(cfg, logger)
	if err := newPipeline(backups, logger).Run(ctx, cfg.StorePath); err != nil {
		return nil, err
	}

	engine, err := store.OpenEngine(cfg.StorePath, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	writer := store.NewSerializer(engine,
		store.WithQueueSize(cfg.QueueSize),
		store.WithMetrics(metrics.NewWriteMetrics(registry)),
		store.WithLogger(logging.Component(logger, "writer")),
	)
	// The queue runs until Close so in-flight requests can finish after a
	// shutdown signal cancels ctx.
	writer.Start(context.WithoutCancel(ctx))

	return &app{
		cfg:      cfg,
		logger:   logger,
		backups:  backups,
		registry: registry,
		engine:   engine,
		writer:   writer,
		shopping: store.NewShoppingStore(engine, writer, opts...),
	}, nil
}

func (a *app) Close() {
	a.writer.Stop()
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}

// withApp loads the configuration, opens the store and runs fn.
func withApp(ctx context.Context, flags *globalFlags, fn func(*app) error) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
