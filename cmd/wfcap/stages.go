package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/workforce-capacity/internal/db"
	"github.com/jonathan/workforce-capacity/internal/pipeline/steps"
)

var stagesCommand = &cobra.Command{
	Use:   "stages",
	Short: "List pipeline stages, or the recorded state of one run",
	Long: `Without --run-id, prints every stage in execution order with its dependencies.
With --run-id, reads the run ledger and prints what each stage recorded and which stages are blocked.`,
	RunE: runStages,
}

var (
	stagesRunID        string
	stagesLedgerDriver string
	stagesLedgerDSN    string
)

func init() {
	stagesCommand.Flags().StringVar(&stagesRunID, "run-id", "", "Run to inspect")
	stagesCommand.Flags().StringVar(&stagesLedgerDriver, "ledger-driver", db.DriverSQLite, "Run ledger driver (postgres or sqlite)")
	stagesCommand.Flags().StringVar(&stagesLedgerDSN, "ledger-dsn", "", "Run ledger DSN (defaults to DATABASE_URL for postgres)")
	rootCmd.AddCommand(stagesCommand)
}

func runStages(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if stagesRunID == "" {
		for i, name := range steps.Order() {
			def, _ := steps.Get(name)
			deps := "-"
			if len(def.Dependencies) > 0 {
				deps = strings.Join(def.Dependencies, ", ")
			}
			_, _ = fmt.Fprintf(out, "%2d. %-20s %-12s after: %s\n", i+1, name, def.Category, deps)
		}
		return nil
	}

	runID, err := uuid.Parse(stagesRunID)
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	dsn := stagesLedgerDSN
	if dsn == "" && stagesLedgerDriver == db.DriverPostgres {
		dsn = os.Getenv("DATABASE_URL")
	}
	ctx := cmd.Context()
	ledger, err := db.Open(ctx, stagesLedgerDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	run, err := ledger.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	_, _ = fmt.Fprintf(out, "Run %s: %s (benchmarks %s)\n", run.ID, run.Status, run.BenchmarkVersion)
	if run.ErrorMessage != nil {
		_, _ = fmt.Fprintf(out, "  error: %s\n", *run.ErrorMessage)
	}

	recorded, err := ledger.ListStages(ctx, runID)
	if err != nil {
		return err
	}
	for _, s := range recorded {
		_, _ = fmt.Fprintf(out, "  %-20s %-10s rows=%d %dms\n", s.Stage, s.Status, s.Rows, s.DurationMs)
	}

	blocked, err := steps.GetBlockedStages(ctx, ledger, runID)
	if err != nil {
		return err
	}
	if len(blocked) > 0 {
		_, _ = fmt.Fprintf(out, "Blocked: %s\n", strings.Join(blocked, ", "))
	}
	return nil
}
