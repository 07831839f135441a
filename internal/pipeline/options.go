package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/artifacts"
	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/config"
	"github.com/jonathan/workforce-capacity/internal/db"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/observability"
	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage    string `json:"stage"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// TableInput is one raw extract. Table takes precedence over Path.
type TableInput struct {
	Name  string
	Path  string
	Table *tabular.Table
	Rules cleaning.Rules
}

// DomainInput is the set of raw tables unified into one cleaned table
type DomainInput struct {
	Tables   []TableInput
	Optional []string
}

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	RunID            uuid.UUID // zero means generate one
	Workforce        DomainInput
	Capacity         DomainInput
	UnmappedPolicy   string
	UnmappedFallback string
	Metrics          metrics.Options
	Overlap          metrics.YearRange
	CompositionYears metrics.YearRange
	MinYear          int
	MaxYear          int
	Registry         *benchmarks.Registry // nil means benchmarks.Default()
	Concurrency      int

	Sink            artifacts.Sink // nil skips publication
	Ledger          db.RunLedger
	Collector       *observability.RunMetrics
	MetricsTextfile string

	Logger     *zap.Logger
	Printer    *observability.Printer // verbose console summaries
	Clock      func() time.Time
	OnProgress ProgressCallback
}

// FromConfig builds run options from a merged, validated descriptor.
// Publication, ledger and logging collaborators are left to the caller.
func FromConfig(cfg *config.Config) (RunOptions, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return RunOptions{}, fmt.Errorf("failed to build benchmark registry: %w", err)
	}
	domain := func(d config.DomainConfig) DomainInput {
		out := DomainInput{Optional: d.Optional}
		for _, t := range d.Tables {
			out.Tables = append(out.Tables, TableInput{Name: t.Name, Path: t.Path, Rules: t.Rules})
		}
		return out
	}
	return RunOptions{
		Workforce:        domain(cfg.Workforce),
		Capacity:         domain(cfg.Capacity),
		UnmappedPolicy:   cfg.Unmapped.Policy,
		UnmappedFallback: cfg.Unmapped.Fallback,
		Metrics:          cfg.Metrics.Options,
		Overlap:          cfg.Metrics.Overlap,
		CompositionYears: cfg.Metrics.CompositionYears,
		MinYear:          cfg.Validation.MinYear,
		MaxYear:          cfg.Validation.MaxYear,
		Registry:         registry,
		Concurrency:      cfg.Concurrency,
		MetricsTextfile:  cfg.Output.MetricsTextfile,
	}, nil
}

func (o RunOptions) withDefaults() RunOptions {
	if o.RunID == uuid.Nil {
		o.RunID = uuid.New()
	}
	if o.Registry == nil {
		o.Registry = benchmarks.Default()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = config.DefaultConcurrency
	}
	if o.MinYear == 0 {
		o.MinYear = config.DefaultMinYear
	}
	if o.MaxYear == 0 {
		o.MaxYear = config.DefaultMaxYear
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
