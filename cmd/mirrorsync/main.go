package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/mirrorsync/pkg/executor"
	"github.com/yuya-takeyama/mirrorsync/pkg/logger"
	"github.com/yuya-takeyama/mirrorsync/pkg/planner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

// errCancelled is returned when the run was interrupted before the plan
// finished.
var errCancelled = errors.New("sync cancelled")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errCancelled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "mirrorsync <source> <destination>",
		Short: "One-way mirror between local directories and S3",
		Long: `mirrorsync makes a destination mirror a source. Either side may be a local
directory or an S3 URI (s3://bucket/prefix). Files are compared by size and
modification time; large objects are fetched as parallel byte ranges.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], args[1], stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: ~/.config/mirrorsync/config.*)")
	addFlags(rootCmd.Flags())

	return rootCmd
}

func run(ctx context.Context, cfg *Config, src, dst string, stdout, stderr io.Writer) error {
	log := logger.New(stderr, cfg.Quiet, cfg.Verbose)

	source, err := openLocation(ctx, src, cfg)
	if err != nil {
		return err
	}
	dest, err := openLocation(ctx, dst, cfg)
	if err != nil {
		return err
	}

	policy := planner.Fresh
	if cfg.Strict {
		policy = planner.Identical
	}

	plnr := planner.New(source.provider, dest.provider, planner.Options{
		Excludes: cfg.Excludes,
		NoDelete: cfg.NoDelete,
		Policy:   policy,
		Logger:   log,
	})

	actions, err := plnr.Plan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", errCancelled, err)
		}
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	if cfg.PlanJSONFile != "" {
		if err := writeJSON(cfg.PlanJSONFile, buildPlanResult(actions, source, dest)); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	syncLog := logger.NewSyncLogger(stdout, stderr, source.display, dest.display, cfg.Quiet, cfg.DryRun)
	summary := planner.Summarize(actions)

	if cfg.DryRun {
		syncLog.Preview(actions)
		syncLog.PrintPlanSummary(summary)
		return nil
	}

	log.Info("plan ready",
		"add", summary.Add,
		"overwrite", summary.Overwrite,
		"delete", summary.Delete,
		"keep", summary.Keep)

	exec := executor.New(source.provider, dest.provider, executor.Options{
		Concurrency:      cfg.Concurrency,
		RangeConcurrency: cfg.RangeConcurrency,
		StagingThreshold: cfg.StagingThreshold,
		RangeThreshold:   cfg.RangeThreshold,
		ChunkSize:        cfg.ChunkSize,
		Progress:         syncLog.Event,
		Logger:           log,
		TempFs:           afero.NewOsFs(),
		TempDir:          cfg.TempDir,
	})

	outcome := exec.Execute(ctx, actions)
	syncLog.PrintSummary(outcome)

	if cfg.ResultJSONFile != "" {
		if err := writeJSON(cfg.ResultJSONFile, buildSyncResult(actions, outcome, source, dest)); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	switch outcome.Status {
	case executor.StatusCancelled:
		return errCancelled
	case executor.StatusFailed:
		return fmt.Errorf("sync failed: %w", outcome.Err())
	}
	return nil
}
