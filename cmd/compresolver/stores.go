package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	corecfg "github.com/aevon-lab/compresolver/internal/core/config"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/storage/memory"
	"github.com/aevon-lab/compresolver/internal/core/storage/postgres"
	"github.com/aevon-lab/compresolver/internal/migrations"
	"github.com/aevon-lab/compresolver/internal/resolution"
	"github.com/aevon-lab/compresolver/internal/server"
)

// backend is an opened metadata store.
type backend struct {
	stores storage.Stores
	health server.HealthChecker // nil for snapshots
	close  func() error
}

func openBackend(cfg *corecfg.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Type {
	case "snapshot":
		path := os.ExpandEnv(cfg.Store.SnapshotPath)
		store, err := memory.LoadSnapshot(path, cfg.Layout)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		logger.Info("Loaded snapshot store", "path", path)
		return &backend{stores: store.Stores(), close: func() error { return nil }}, nil

	case "postgres":
		db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		adapter, err := postgres.NewAdapter(db, cfg.Layout)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &backend{stores: adapter.Stores(), health: adapter.DB(), close: adapter.Close}, nil
	}
	return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
}

// loadOptions scopes the resolution context to the configured application
// and algorithm catalog.
func loadOptions(cfg *corecfg.Config) resolution.LoadOptions {
	opts := resolution.LoadOptions{AppID: cfg.Resolver.ApplicationID}
	if cfg.Catalog != nil {
		opts.Algorithms = cfg.Catalog
	}
	return opts
}

func loadContext(ctx context.Context, cfg *corecfg.Config, b *backend, logger *slog.Logger) (*resolution.Context, error) {
	return resolution.Load(ctx, b.stores, cfg.Layout, loadOptions(cfg), logger)
}
