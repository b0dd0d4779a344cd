// Command lexctl runs lexdex maintenance jobs from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/app"
	"github.com/kailas-cloud/lexdex/internal/config"
	logpkg "github.com/kailas-cloud/lexdex/internal/logger"
	"github.com/kailas-cloud/lexdex/internal/version"
)

// Options are the flags shared by every command.
type Options struct {
	Env string
}

func main() {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "lexctl",
		Short:         "lexdex maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.Env, "env", "e", config.GetEnv(), "config environment (config/<env>.yaml)")

	root.AddCommand(
		newMigrateCommand(opts),
		newRunBatchCommand(opts),
		newStatsCommand(opts),
		newBuildGraphCommand(opts),
		newDriftCommand(opts),
		newBenchmarkCommand(opts),
		newVersionCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the lexdex build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// withApp loads config, wires the app and runs fn with it.
func withApp(ctx context.Context, opts *Options, fn func(a *app.App) error) error {
	cfg, err := config.Load(opts.Env)
	if err != nil {
		return err
	}
	logger, err := logpkg.NewLogger(opts.Env, logpkg.Options{
		Level: cfg.Logging.Level,
		File: logpkg.FileSink{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
