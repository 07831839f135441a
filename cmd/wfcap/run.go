package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/artifacts"
	"github.com/jonathan/workforce-capacity/internal/config"
	"github.com/jonathan/workforce-capacity/internal/db"
	"github.com/jonathan/workforce-capacity/internal/observability"
	"github.com/jonathan/workforce-capacity/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline end-to-end",
	Long: `Orchestrates the whole run: ingest -> clean -> resolve unmapped sectors -> unify -> validate -> metrics -> report -> publish.

The descriptor given by --config names the raw extracts and their cleaning rules. Command-line flags override descriptor values.
Nothing is published unless every stage succeeds.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath      string
	runOutDir          string
	runS3Bucket        string
	runS3Prefix        string
	runLedgerDriver    string
	runLedgerDSN       string
	runMetricsTextfile string
	runLogLevel        string
	runLogJSON         bool
	runConcurrency     int
	runID              string
	runVerbose         bool
	runDryRun          bool
)

func init() {
	runCommand.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to the run descriptor (.yaml or .json)")
	runCommand.Flags().StringVarP(&runOutDir, "out", "o", "", "Directory to publish artifacts to")
	runCommand.Flags().StringVar(&runS3Bucket, "s3-bucket", "", "Publish to this S3 bucket instead of a directory")
	runCommand.Flags().StringVar(&runS3Prefix, "s3-prefix", "", "Key prefix inside the S3 bucket")
	runCommand.Flags().StringVar(&runLedgerDriver, "ledger-driver", "", "Run ledger driver (postgres or sqlite)")
	runCommand.Flags().StringVar(&runLedgerDSN, "ledger-dsn", "", "Run ledger DSN (defaults to DATABASE_URL for postgres)")
	runCommand.Flags().StringVar(&runMetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this textfile")
	runCommand.Flags().StringVar(&runLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCommand.Flags().BoolVar(&runLogJSON, "log-json", false, "Emit JSON logs")
	runCommand.Flags().IntVar(&runConcurrency, "concurrency", 0, "Tables cleaned in parallel")
	runCommand.Flags().StringVar(&runID, "run-id", "", "Run id (generated when empty)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print stage summaries")
	runCommand.Flags().BoolVar(&runDryRun, "dry-run", false, "Run every stage but do not publish")
	_ = runCommand.MarkFlagRequired("config")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	// Step 1: Load the descriptor
	loaded, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := *loaded

	// Step 2: Apply CLI overrides (only flags explicitly set)
	applyRunOverrides(cmd, &cfg)

	// Step 3: Defaults, then validation
	cfg = cfg.MergeWithDefaults(config.Config{})
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Step 4: Logger
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts, err := pipeline.FromConfig(&cfg)
	if err != nil {
		return err
	}
	opts.Logger = logger
	opts.Collector = observability.NewRunMetrics()
	if runID != "" {
		if opts.RunID, err = uuid.Parse(runID); err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
	}
	if runVerbose {
		opts.Printer = observability.NewPrinter(out)
		opts.OnProgress = func(e pipeline.ProgressEvent) {
			logger.Debug("progress", zap.String("stage", e.Stage), zap.String("message", e.Message))
		}
	}

	// Step 5: Publication target
	if !runDryRun {
		sink, err := openSink(ctx, cfg.Output)
		if err != nil {
			return err
		}
		opts.Sink = sink
	}

	// Step 6: Optional run ledger
	if cfg.Ledger.Driver != "" {
		dsn := cfg.Ledger.DSN
		if dsn == "" && cfg.Ledger.Driver == db.DriverPostgres {
			dsn = os.Getenv("DATABASE_URL")
		}
		ledger, err := db.Open(ctx, cfg.Ledger.Driver, dsn)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer func() { _ = ledger.Close() }()
		opts.Ledger = ledger
	}

	res, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Run %s completed: %d metric records, %d flagged mismatches\n",
		res.RunID, len(res.Metrics.Records), res.Report.Summary.MismatchFlags)
	if len(res.Locations) == 0 {
		_, _ = fmt.Fprintln(out, "Dry run: nothing published")
	}
	for _, l := range res.Locations {
		_, _ = fmt.Fprintf(out, "  %s\n", l.URI)
	}
	return nil
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output.Dir = runOutDir
		cfg.Output.S3 = nil
	}
	if flags.Changed("s3-bucket") {
		cfg.Output.S3 = &config.S3Config{Bucket: runS3Bucket}
	}
	if flags.Changed("s3-prefix") && cfg.Output.S3 != nil {
		cfg.Output.S3.Prefix = runS3Prefix
	}
	if flags.Changed("ledger-driver") {
		cfg.Ledger.Driver = runLedgerDriver
	}
	if flags.Changed("ledger-dsn") {
		cfg.Ledger.DSN = runLedgerDSN
	}
	if flags.Changed("metrics-textfile") {
		cfg.Output.MetricsTextfile = runMetricsTextfile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = runLogLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = runLogJSON
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = runConcurrency
	}
}

// openSink returns the S3 sink when a bucket is configured, else a directory sink.
// Static S3 credentials come from WFCAP_S3_ACCESS_KEY_ID and
// WFCAP_S3_SECRET_ACCESS_KEY; without them the default AWS chain is used.
func openSink(ctx context.Context, out config.OutputConfig) (artifacts.Sink, error) {
	if out.S3 != nil {
		sink, err := artifacts.NewS3(ctx, artifacts.S3Config{
			Bucket:          out.S3.Bucket,
			Prefix:          out.S3.Prefix,
			Region:          out.S3.Region,
			Endpoint:        out.S3.Endpoint,
			PathStyle:       out.S3.PathStyle,
			AccessKeyID:     os.Getenv("WFCAP_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("WFCAP_S3_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 sink: %w", err)
		}
		return sink, nil
	}
	sink, err := artifacts.NewFS(out.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return sink, nil
}
