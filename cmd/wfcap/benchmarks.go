package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/config"
)

var benchmarksCommand = &cobra.Command{
	Use:   "benchmarks [name]",
	Short: "List the benchmark reference ranges",
	Long:  "Lists every benchmark of the registry, or describes one by name. With --config the descriptor's overrides are applied.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBenchmarks,
}

var benchmarksConfig string

func init() {
	benchmarksCommand.Flags().StringVarP(&benchmarksConfig, "config", "c", "", "Run descriptor whose benchmark overrides apply")
	rootCmd.AddCommand(benchmarksCommand)
}

func runBenchmarks(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	registry := benchmarks.Default()
	if benchmarksConfig != "" {
		cfg, err := config.LoadConfig(benchmarksConfig)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if registry, err = cfg.Registry(); err != nil {
			return err
		}
	}

	names := registry.Names()
	if len(args) == 1 {
		names = args
	}
	_, _ = fmt.Fprintf(out, "Benchmark registry %s\n\n", registry.Version())
	for _, name := range names {
		desc, err := registry.Describe(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, desc)
	}
	return nil
}
