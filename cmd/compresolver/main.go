// Command compresolver converts single computations into group
// computations: it expands group templates, disposes of singles the
// template already covers and excludes members a differing single owns.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	corecfg "github.com/aevon-lab/compresolver/internal/core/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	snapshot   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "compresolver",
		Short: "Resolve group computations against existing single computations",
		Long: `compresolver enables group (template) computations and removes the
single computations they make redundant. Where a single computation
differs from what the template would produce, the member it covers is
excluded from the template's group instead.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.snapshot, "snapshot", "", "Read a YAML snapshot instead of PostgreSQL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log.level)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	return root
}

// load reads the config, applies the global flag overrides and installs the
// default logger.
func (o *globalOptions) load() (*corecfg.Config, *slog.Logger, error) {
	cfg, err := corecfg.Load(os.ExpandEnv(o.configPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.snapshot != "" {
		cfg.Store.Type = "snapshot"
		cfg.Store.SnapshotPath = o.snapshot
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
