// Package main provides the wfcap command line: it runs the workforce-capacity
// pipeline and inspects its descriptors, benchmarks and stages.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wfcap",
	Short: "Healthcare workforce and capacity data pipeline",
	Long: `wfcap cleans raw workforce and facility capacity extracts, unifies and validates them,
computes workforce-to-capacity metrics against published benchmarks, and publishes
the cleaned tables, metrics and a data quality report.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
