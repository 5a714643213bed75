package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aevon-lab/compresolver/internal/reconcile"
	"github.com/aevon-lab/compresolver/internal/report"
)

type runOptions struct {
	testMode     bool
	dispose      string
	disposedPath string
	reportPath   string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <computation-id>...",
		Short: "Reconcile group computations with the single computations they overlap",
		Long: `For each template computation ID: expand it over its group, dispose of
single computations that are identical to a clone, exclude members whose
single computation differs, and enable the template.

With --test-mode every decision is reported but nothing is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, global, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.testMode, "test-mode", "T", false, "Report what would change without writing to the database")
	cmd.Flags().StringVarP(&opts.dispose, "dispose", "X", "", "What to do with redundant singles: delete or disable (default from resolver.dispose)")
	cmd.Flags().StringVarP(&opts.disposedPath, "disposed-file", "S", "", "XML file that receives disposed computations (default from resolver.disposed_path)")
	cmd.Flags().StringVarP(&opts.reportPath, "report", "R", "", "Report file (default from resolver.report_path)")
	return cmd
}

func runReconcile(cmd *cobra.Command, global *globalOptions, opts *runOptions, args []string) error {
	cfg, logger, err := global.load()
	if err != nil {
		return err
	}

	dryRun := cfg.Resolver.TestMode || opts.testMode
	disposeFlag := cfg.Resolver.Dispose
	if cmd.Flags().Changed("dispose") {
		disposeFlag = opts.dispose
	}
	dispose, err := reconcile.ParseDisposeMode(disposeFlag)
	if err != nil {
		return err
	}
	disposedPath := cfg.Resolver.DisposedPath
	if cmd.Flags().Changed("disposed-file") {
		disposedPath = opts.disposedPath
	}
	reportPath := cfg.Resolver.ReportPath
	if cmd.Flags().Changed("report") {
		reportPath = opts.reportPath
	}

	w, err := report.Create(reportPath, logger)
	if err != nil {
		return fmt.Errorf("cannot open report file: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("Failed to close report", "path", reportPath, "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(cfg, logger)
	if err != nil {
		w.Line("Cannot open the computation store: %v", err)
		return err
	}
	defer b.close()

	rc, err := loadContext(ctx, cfg, b, logger)
	if err != nil {
		w.Line("Cannot load computations and groups: %v", err)
		return err
	}

	r := reconcile.New(rc, b.stores, nil, w, reconcile.Options{
		DryRun:       dryRun,
		Dispose:      dispose,
		DisposedPath: os.ExpandEnv(disposedPath),
	}, logger)

	outcomes, runErr := r.Run(ctx, args)
	printSummary(cmd, outcomes, dryRun)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return w.Err()
}

func printSummary(cmd *cobra.Command, outcomes []*reconcile.Outcome, dryRun bool) {
	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		line := fmt.Sprintf("Computation-%d: %s", o.CompID, o.State)
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		if len(o.Redundant) > 0 || len(o.MustExclude) > 0 {
			line += fmt.Sprintf(", %d redundant, %d excluded", len(o.Redundant), len(o.MustExclude))
		}
		fmt.Fprintln(out, line)
	}
	if dryRun {
		fmt.Fprintln(out, "Test mode: nothing was written.")
	}
}
