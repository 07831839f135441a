package report

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/schemas"
	"github.com/jonathan/workforce-capacity/internal/types"
	"github.com/jonathan/workforce-capacity/internal/unify"
	"github.com/jonathan/workforce-capacity/internal/validation"
	schemafiles "github.com/jonathan/workforce-capacity/schemas"
)

// Input is everything the generator consumes. Only Cleaning and Metrics are required.
type Input struct {
	RunID       string
	Cleaning    []*cleaning.Log
	Resolutions map[string][]cleaning.Resolution // by table
	Unify       []*unify.Log
	Validation  []*validation.Report
	Metrics     *metrics.Result
	Composition *metrics.CompositionResult
	Mismatch    []types.MismatchResult
	Cumulative  []types.CumulativeMismatch
	Statistics  *metrics.Statistics
}

// Summary holds run-wide totals
type Summary struct {
	TablesCleaned      int `json:"tables_cleaned"`
	RowsIn             int `json:"rows_in"`
	RowsOut            int `json:"rows_out"`
	NullsIn            int `json:"nulls_in"`
	NullsOut           int `json:"nulls_out"`
	DuplicatesRemoved  int `json:"duplicates_removed"`
	NearDuplicateSets  int `json:"near_duplicate_sets"`
	ConversionFailures int `json:"conversion_failures"`
	RowsWithMissing    int `json:"rows_with_missing"`
	RowsDropped        int `json:"rows_dropped"`
	OutlierRows        int `json:"outlier_rows"`
	UnmappedValues     int `json:"unmapped_values"`
	MetricRecords      int `json:"metric_records"`
	WithinBenchmark    int `json:"within_benchmark"`
	MismatchFlags      int `json:"mismatch_flags"`
	Exclusions         int `json:"exclusions"`
	DivisionGuards     int `json:"division_guards"`
	ValidationWarnings int `json:"validation_warnings"`
}

// TableQuality is the cleaning outcome of one raw table
type TableQuality struct {
	Table              string                   `json:"table"`
	RowsBefore         int                      `json:"rows_before"`
	RowsAfter          int                      `json:"rows_after"`
	NullsBefore        int                      `json:"nulls_before"`
	NullsAfter         int                      `json:"nulls_after"`
	Steps              []cleaning.StepLog       `json:"steps"`
	Renamed            map[string]string        `json:"renamed"`
	Categories         []cleaning.CategoryLog   `json:"categories"`
	ConversionFailures map[string]int           `json:"conversion_failures"`
	DuplicatesRemoved  int                      `json:"duplicates_removed"`
	NearDuplicates     []cleaning.NearDuplicate `json:"near_duplicates"`
	Missing            cleaning.MissingLog      `json:"missing"`
	Outliers           cleaning.OutlierLog      `json:"outliers"`
	Resolutions        []cleaning.Resolution    `json:"resolutions"`
}

// MetricsSection summarizes the metrics stage
type MetricsSection struct {
	Records      int                          `json:"records"`
	Overlap      metrics.YearRange            `json:"overlap"`
	Benchmark    string                       `json:"benchmark"`
	Within       int                          `json:"within_benchmark"`
	Flags        int                          `json:"mismatch_flags"`
	Excluded     []metrics.Exclusion          `json:"excluded"`
	Guards       []metrics.DivisionGuardError `json:"division_guards"`
	NullsSkipped map[string]int               `json:"nulls_skipped"`
	BaseYear     int                          `json:"base_year,omitempty"`
	Indexed      []types.IndexedRecord        `json:"indexed_growth"`
}

// CompositionSection summarizes the profession composition stage
type CompositionSection struct {
	Records   int                          `json:"records"`
	Benchmark string                       `json:"benchmark"`
	Within    int                          `json:"within_normal_range"`
	Excluded  []metrics.Exclusion          `json:"excluded"`
	Guards    []metrics.DivisionGuardError `json:"division_guards"`
}

// QualityReport is the published data quality report
type QualityReport struct {
	RunID            string                     `json:"run_id"`
	GeneratedAt      string                     `json:"generated_at"`
	BenchmarkVersion string                     `json:"benchmark_version"`
	Summary          Summary                    `json:"summary"`
	Tables           []TableQuality             `json:"tables"`
	Unified          []*unify.Log               `json:"unified"`
	Validation       []*validation.Report       `json:"validation"`
	Metrics          MetricsSection             `json:"metrics"`
	Composition      *CompositionSection        `json:"composition,omitempty"`
	Benchmarks       []types.Benchmark          `json:"benchmarks"`
	Mismatch         []types.MismatchResult     `json:"mismatch"`
	Cumulative       []types.CumulativeMismatch `json:"cumulative"`
	Statistics       *metrics.Statistics        `json:"statistics,omitempty"`
}

// Generator builds quality reports. The zero value is not usable; call NewGenerator.
type Generator struct {
	registry *benchmarks.Registry
	now      func() time.Time
}

// NewGenerator creates a generator citing the benchmarks of registry.
// A nil clock uses time.Now.
func NewGenerator(registry *benchmarks.Registry, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{registry: registry, now: now}
}

// Build assembles the report. The output is deterministic for a fixed clock and run id.
func (g *Generator) Build(in Input) (*QualityReport, error) {
	if len(in.Cleaning) == 0 {
		return nil, &Error{Message: "no cleaning logs"}
	}
	if in.Metrics == nil {
		return nil, &Error{Message: "metrics result is required"}
	}

	r := &QualityReport{
		RunID:       in.RunID,
		GeneratedAt: g.now().UTC().Format(time.RFC3339),
		Unified:     nonNil(in.Unify),
		Validation:  nonNil(in.Validation),
		Mismatch:    nonNil(in.Mismatch),
		Cumulative:  nonNil(in.Cumulative),
	}
	if g.registry != nil {
		r.BenchmarkVersion = g.registry.Version()
		r.Benchmarks = g.registry.All()
	}
	r.Benchmarks = nonNil(r.Benchmarks)

	// 1. Per-table cleaning outcome
	logs := slices.Clone(in.Cleaning)
	slices.SortFunc(logs, func(a, b *cleaning.Log) int { return strings.Compare(a.Table, b.Table) })
	for _, l := range logs {
		if l == nil {
			return nil, &Error{Message: "nil cleaning log"}
		}
		r.Tables = append(r.Tables, tableQuality(l, in.Resolutions[l.Table]))
		s := &r.Summary
		s.TablesCleaned++
		s.RowsIn += l.RowsIn
		s.RowsOut += l.RowsOut
		s.NullsIn += l.NullsIn
		s.NullsOut += l.NullsOut
		s.DuplicatesRemoved += l.DuplicatesRemoved
		s.NearDuplicateSets += len(l.NearDuplicates)
		s.ConversionFailures += l.TotalConversionFailures()
		s.RowsWithMissing += l.Missing.RowsFlagged
		s.RowsDropped += l.Missing.RowsDropped
		s.OutlierRows += l.Outliers.RowsFlagged
		for _, vals := range l.UnmappedValues() {
			s.UnmappedValues += len(vals)
		}
	}
	for _, v := range in.Validation {
		r.Summary.ValidationWarnings += len(v.Warnings)
	}

	// 2. Metrics
	m := in.Metrics
	r.Metrics = MetricsSection{
		Records:      len(m.Records),
		Overlap:      m.Overlap,
		Benchmark:    m.Benchmark.Name,
		Excluded:     nonNil(m.Excluded),
		Guards:       nonNil(m.Guards),
		NullsSkipped: m.NullsSkipped,
		BaseYear:     m.BaseYear,
		Indexed:      nonNil(m.Indexed),
	}
	if r.Metrics.NullsSkipped == nil {
		r.Metrics.NullsSkipped = map[string]int{}
	}
	for _, rec := range m.Records {
		if rec.WithinBenchmark {
			r.Metrics.Within++
		}
		if rec.MismatchFlag {
			r.Metrics.Flags++
		}
	}
	r.Summary.MetricRecords = r.Metrics.Records
	r.Summary.WithinBenchmark = r.Metrics.Within
	r.Summary.MismatchFlags = r.Metrics.Flags
	r.Summary.Exclusions = len(m.Excluded)
	r.Summary.DivisionGuards = len(m.Guards)

	// 3. Composition
	if c := in.Composition; c != nil {
		sec := &CompositionSection{
			Records:   len(c.Records),
			Benchmark: c.Benchmark.Name,
			Excluded:  nonNil(c.Excluded),
			Guards:    nonNil(c.Guards),
		}
		for _, rec := range c.Records {
			if rec.WithinNormalRange {
				sec.Within++
			}
		}
		r.Composition = sec
		r.Summary.DivisionGuards += len(c.Guards)
	}

	// 4. Hypothesis tests
	r.Statistics = in.Statistics
	return r, nil
}

func tableQuality(l *cleaning.Log, res []cleaning.Resolution) TableQuality {
	return TableQuality{
		Table:              l.Table,
		RowsBefore:         l.RowsIn,
		RowsAfter:          l.RowsOut,
		NullsBefore:        l.NullsIn,
		NullsAfter:         l.NullsOut,
		Steps:              nonNil(l.Steps),
		Renamed:            nonNilMap(l.Renamed),
		Categories:         nonNil(l.Categories),
		ConversionFailures: nonNilMap(l.ConversionFailures),
		DuplicatesRemoved:  l.DuplicatesRemoved,
		NearDuplicates:     nonNil(l.NearDuplicates),
		Missing:            l.Missing,
		Outliers:           l.Outliers,
		Resolutions:        nonNil(res),
	}
}

// Encode renders the report as indented JSON and checks it against the
// quality report schema.
func Encode(r *QualityReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, &Error{Message: "failed to marshal report", Cause: err}
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate checks an encoded report against the quality report schema
func Validate(data []byte) error {
	if err := schemas.ValidateDocument("quality_report.schema.json", schemafiles.QualityReport, data); err != nil {
		return &Error{Message: "report does not match schema", Cause: err}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
