package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/types"
	"github.com/jonathan/workforce-capacity/internal/unify"
	"github.com/jonathan/workforce-capacity/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedClock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func f64(v float64) *float64 { return &v }

func cleaningLog(table string, rowsIn, rowsOut int) *cleaning.Log {
	return &cleaning.Log{
		Table:              table,
		RowsIn:             rowsIn,
		RowsOut:            rowsOut,
		NullsIn:            2,
		NullsOut:           3,
		Steps:              []cleaning.StepLog{{Step: "rename", RowsBefore: rowsIn, RowsAfter: rowsIn}},
		ConversionFailures: map[string]int{"count": 1},
		DuplicatesRemoved:  rowsIn - rowsOut,
		Missing:            cleaning.MissingLog{Policy: cleaning.PolicyFlag, RowsFlagged: 2},
		Outliers:           cleaning.OutlierLog{Method: cleaning.MethodZScore, Threshold: 3, RowsFlagged: 1},
	}
}

func sampleInput() Input {
	return Input{
		RunID: "run-1",
		Cleaning: []*cleaning.Log{
			cleaningLog("workforce_nurses", 5, 5),
			cleaningLog("capacity_hospital_beds", 4, 3),
		},
		Resolutions: map[string][]cleaning.Resolution{
			"capacity_hospital_beds": {{Column: "sector", Policy: cleaning.UnmappedFallback, Values: []string{"Closed"}, RowsAffected: 1, Fallback: "Inactive"}},
		},
		Unify: []*unify.Log{{Name: "workforce", Discriminator: "source_table", Inputs: []unify.InputLog{{Table: "workforce_nurses", Rows: 5}}, RowsOut: 5}},
		Validation: []*validation.Report{
			{Table: "workforce", Contract: "workforce", Rows: 5, Passed: true, Warnings: []string{"w"}},
		},
		Metrics: &metrics.Result{
			Records: []types.MetricRecord{
				{Year: 2009, Sector: types.SectorPublic, TotalWorkforce: 2000, TotalCapacity: 1000, Ratio: 2, WithinBenchmark: true},
				{Year: 2010, Sector: types.SectorPublic, TotalWorkforce: 2100, TotalCapacity: 1040, Ratio: 2.019, WithinBenchmark: true,
					MismatchIndex: f64(1), MismatchFlag: false},
				{Year: 2011, Sector: types.SectorPublic, Ratio: 3.1, MismatchIndex: f64(3), MismatchFlag: true},
			},
			Excluded:  []metrics.Exclusion{{Year: 2008, Sector: types.SectorPublic, Reason: metrics.ReasonOutsideWindow}},
			Guards:    []metrics.DivisionGuardError{{Metric: "workforce_to_bed", Year: 2012, Sector: types.SectorPrivate, Numerator: 10}},
			Overlap:   metrics.YearRange{Start: 2009, End: 2011},
			Benchmark: types.Benchmark{Name: benchmarks.WorkforceToBed, LowerBound: 1.5, UpperBound: 2.5},
			BaseYear:  2009,
			Indexed: []types.IndexedRecord{
				{Year: 2009, Sector: types.SectorPublic, BaseYear: 2009, WorkforceIndex: f64(100), CapacityIndex: f64(100)},
				{Year: 2010, Sector: types.SectorPublic, BaseYear: 2009, WorkforceIndex: f64(105), CapacityIndex: f64(104)},
				{Year: 2010, Sector: types.SectorPrivate, BaseYear: 2009, CapacityIndex: f64(110)},
			},
		},
		Statistics: &metrics.Statistics{
			Significance: 0.05,
			Correlations: []types.CorrelationTest{{
				Method: metrics.MethodPearson, Correlation: 0.8, PValue: 0.104, Strength: "strong",
				Direction: "positive", Conclusion: "Strong positive correlation", SampleSize: 5,
			}},
			Skipped: []metrics.SkippedTest{{Test: metrics.StatSectorGrowth, Reason: "1 sectors with growth rates, need at least 2"}},
		},
		Composition: &metrics.CompositionResult{
			Records: []types.CompositionRecord{
				{Year: 2009, Sector: types.SectorPublic, Ratio: 0.3, WithinNormalRange: true},
				{Year: 2010, Sector: types.SectorPublic, Ratio: 0.6},
			},
			Guards:    []metrics.DivisionGuardError{{Metric: "doctor_to_nurse", Year: 2011, Sector: types.SectorPublic, Denominator: f64(0)}},
			Benchmark: types.Benchmark{Name: benchmarks.DoctorToNurse},
		},
		Mismatch: []types.MismatchResult{{
			Sector: types.SectorPublic, StartYear: 2009, EndYear: 2011, YearsAnalyzed: 2,
			YearsAffected: []int{2011}, AverageMismatch: 2, MaxMismatch: 3, CumulativeMismatch: 4,
			Severity: types.SeverityMedium,
		}},
		Cumulative: []types.CumulativeMismatch{{Sector: types.SectorPublic, StartYear: 2009, EndYear: 2011, Cumulative: 4, YearsAnalyzed: 2, AverageAnnual: 2}},
	}
}

func TestBuild_Summary(t *testing.T) {
	g := NewGenerator(benchmarks.Default(), fixedClock)

	r, err := g.Build(sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "2024-03-01T12:00:00Z", r.GeneratedAt)
	assert.Equal(t, benchmarks.Default().Version(), r.BenchmarkVersion)
	assert.NotEmpty(t, r.Benchmarks)

	s := r.Summary
	assert.Equal(t, 2, s.TablesCleaned)
	assert.Equal(t, 9, s.RowsIn)
	assert.Equal(t, 8, s.RowsOut)
	assert.Equal(t, 1, s.DuplicatesRemoved)
	assert.Equal(t, 2, s.ConversionFailures)
	assert.Equal(t, 4, s.RowsWithMissing)
	assert.Equal(t, 2, s.OutlierRows)
	assert.Equal(t, 3, s.MetricRecords)
	assert.Equal(t, 2, s.WithinBenchmark)
	assert.Equal(t, 1, s.MismatchFlags)
	assert.Equal(t, 1, s.Exclusions)
	assert.Equal(t, 2, s.DivisionGuards)
	assert.Equal(t, 1, s.ValidationWarnings)
}

func TestBuild_TablesSortedWithResolutions(t *testing.T) {
	r, err := NewGenerator(nil, fixedClock).Build(sampleInput())
	require.NoError(t, err)

	require.Len(t, r.Tables, 2)
	assert.Equal(t, "capacity_hospital_beds", r.Tables[0].Table)
	assert.Equal(t, "workforce_nurses", r.Tables[1].Table)
	require.Len(t, r.Tables[0].Resolutions, 1)
	assert.Equal(t, "Inactive", r.Tables[0].Resolutions[0].Fallback)
	assert.Empty(t, r.Tables[1].Resolutions)
	assert.NotNil(t, r.Tables[1].Resolutions)
	assert.NotNil(t, r.Tables[1].Renamed)
}

func TestBuild_Composition(t *testing.T) {
	r, err := NewGenerator(nil, fixedClock).Build(sampleInput())
	require.NoError(t, err)

	require.NotNil(t, r.Composition)
	assert.Equal(t, 2, r.Composition.Records)
	assert.Equal(t, 1, r.Composition.Within)
	assert.Equal(t, benchmarks.DoctorToNurse, r.Composition.Benchmark)
	assert.NotNil(t, r.Composition.Excluded)
}

func TestBuild_RequiresCleaningAndMetrics(t *testing.T) {
	g := NewGenerator(nil, fixedClock)

	in := sampleInput()
	in.Cleaning = nil
	_, err := g.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cleaning logs")

	in = sampleInput()
	in.Metrics = nil
	_, err = g.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics result is required")
}

func TestBuild_DoesNotReorderInput(t *testing.T) {
	in := sampleInput()
	_, err := NewGenerator(nil, fixedClock).Build(in)
	require.NoError(t, err)
	assert.Equal(t, "workforce_nurses", in.Cleaning[0].Table)
}

func TestEncode_MatchesSchema(t *testing.T) {
	r, err := NewGenerator(benchmarks.Default(), fixedClock).Build(sampleInput())
	require.NoError(t, err)

	data, err := Encode(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	guards := decoded["metrics"].(map[string]any)["division_guards"].([]any)
	require.Len(t, guards, 1)
	assert.Nil(t, guards[0].(map[string]any)["denominator"])
}

func TestEncode_IndexedGrowthAndStatistics(t *testing.T) {
	r, err := NewGenerator(benchmarks.Default(), fixedClock).Build(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 2009, r.Metrics.BaseYear)
	require.Len(t, r.Metrics.Indexed, 3)
	require.NotNil(t, r.Statistics)

	data, err := Encode(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	indexed := decoded["metrics"].(map[string]any)["indexed_growth"].([]any)
	require.Len(t, indexed, 3)
	assert.Nil(t, indexed[2].(map[string]any)["workforce_index"])

	stats := decoded["statistics"].(map[string]any)
	correlations := stats["correlations"].([]any)
	require.Len(t, correlations, 1)
	assert.Equal(t, "pearson", correlations[0].(map[string]any)["method"])
	assert.NotContains(t, stats, "sector_growth")
	assert.Len(t, stats["skipped"].([]any), 1)
}

func TestValidate_RejectsOutOfRangePValue(t *testing.T) {
	r, err := NewGenerator(benchmarks.Default(), fixedClock).Build(sampleInput())
	require.NoError(t, err)
	r.Statistics.Correlations[0].PValue = 1.5

	_, err = Encode(r)
	require.Error(t, err)
}

func TestEncode_Deterministic(t *testing.T) {
	g := NewGenerator(benchmarks.Default(), fixedClock)
	a, err := g.Build(sampleInput())
	require.NoError(t, err)
	b, err := g.Build(sampleInput())
	require.NoError(t, err)

	da, err := Encode(a)
	require.NoError(t, err)
	db, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
}

func TestEncode_MinimalInput(t *testing.T) {
	r, err := NewGenerator(nil, fixedClock).Build(Input{
		RunID:    "bare",
		Cleaning: []*cleaning.Log{cleaningLog("t", 1, 1)},
		Metrics:  &metrics.Result{},
	})
	require.NoError(t, err)

	_, err = Encode(r)
	require.NoError(t, err)
}

func TestValidate_RejectsBadReport(t *testing.T) {
	err := Validate([]byte(`{"run_id": "x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report does not match schema")

	err = Validate([]byte(`not json`))
	require.Error(t, err)
}
