package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexdex/internal/app"
	benchmarkuc "github.com/kailas-cloud/lexdex/internal/usecase/benchmark"
	pipelineuc "github.com/kailas-cloud/lexdex/internal/usecase/pipeline"
)

func newMigrateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				applied, err := a.DB.Migrate(cmd.Context())
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
				}
				return nil
			})
		},
	}
}

func newRunBatchCommand(opts *Options) *cobra.Command {
	var t pipelineuc.Trigger
	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "run one pipeline batch over claimable documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if t.BatchSize == 0 {
					t.BatchSize = a.Config.Pipeline.BatchSize
				}
				if t.MaxItems == 0 {
					t.MaxItems = a.Config.Pipeline.MaxItems
				}
				res, err := a.Pipeline.Run(cmd.Context(), t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"processed": res.Processed,
					"failed":    res.Failed,
					"duration":  res.Duration.String(),
				})
			})
		},
	}
	cmd.Flags().IntVar(&t.BatchSize, "batch-size", 0, "documents claimed per round (default from config)")
	cmd.Flags().IntVar(&t.MaxItems, "max-items", 0, "documents attempted by the run (default from config)")
	cmd.Flags().StringVar(&t.Category, "category", "", "only process this category")
	return cmd
}

func newStatsCommand(opts *Options) *cobra.Command {
	var stuckAfter time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print the pipeline funnel and bottlenecks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				funnel, err := a.Stats.Funnel(cmd.Context(), stuckAfter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), funnel)
			})
		},
	}
	cmd.Flags().DurationVar(&stuckAfter, "stuck-after", 0, "dwell time after which a document counts as stuck (default 72h)")
	return cmd
}

func newBuildGraphCommand(opts *Options) *cobra.Command {
	var (
		provider string
		dryRun   bool
		minSim   float64
	)
	cmd := &cobra.Command{
		Use:   "build-graph",
		Short: "rebuild the document similarity graph from embedding centroids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if provider == "" {
					provider = a.Chain.Providers()[0]
				}
				o := a.GraphOptions(provider)
				o.DryRun = dryRun
				if cmd.Flags().Changed("min-similarity") {
					o.MinSimilarity = minSim
				}
				rep, err := a.Graph.Build(cmd.Context(), o)
				if err != nil {
					return err
				}
				if !dryRun {
					// the relation list is only interesting when nothing was written
					rep.Relations = nil
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "embedding space to compare (default: primary provider)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute relations without writing them")
	cmd.Flags().Float64Var(&minSim, "min-similarity", 0, "override graph.min_similarity")
	return cmd
}

func newDriftCommand(opts *Options) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "compare the current window against the previous one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				rep, err := a.Drift.Report(cmd.Context(), window)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "window length (default from config)")
	return cmd
}

func newBenchmarkCommand(opts *Options) *cobra.Command {
	var (
		path string
		k    int
	)
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "score retrieval against a labelled question set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := benchmarkuc.LoadCases(path)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				rep, err := a.Benchmark.Run(cmd.Context(), cases, k)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().StringVarP(&path, "cases", "f", "testdata/benchmark.yaml", "benchmark cases file")
	cmd.Flags().IntVarP(&k, "top-k", "k", benchmarkuc.DefaultK, "cutoff for recall@k")
	return cmd
}
