package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jonathan/workforce-capacity/internal/artifacts"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/types"
	"github.com/jonathan/workforce-capacity/internal/validation"
	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestPrintCleaning(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCleaning([]*cleaning.Log{
		{
			Table:              "workforce_doctors",
			RowsIn:             12,
			RowsOut:            10,
			NullsIn:            3,
			NullsOut:           4,
			DuplicatesRemoved:  2,
			ConversionFailures: map[string]int{"count": 1},
			Categories:         []cleaning.CategoryLog{{Column: "sector", Unmapped: []string{"Mystery"}}},
			Outliers:           cleaning.OutlierLog{Method: "zscore", RowsFlagged: 1},
		},
		{Table: "capacity_hospital_beds", RowsIn: 4, RowsOut: 4},
	})
	output := buf.String()

	assert.Contains(t, output, "DATA CLEANING")
	assert.Contains(t, output, "workforce_doctors")
	assert.Contains(t, output, "12 -> 10 (2 duplicates)")
	assert.Contains(t, output, "Failed conversions: 1")
	assert.Contains(t, output, "unmapped sector: Mystery")
	assert.Contains(t, output, "Outliers: 1 rows (zscore)")
	assert.Contains(t, output, "capacity_hospital_beds")
}

func TestPrintCleaning_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintCleaning(nil)
	assert.Empty(t, buf.String())
}

func TestPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintValidation([]*validation.Report{
		{Table: "workforce", Contract: "workforce", Rows: 40, Passed: true, Warnings: []string{"a", "b", "c", "d"}},
		{Table: "capacity", Contract: "capacity", Rows: 8, Passed: false, Failures: []string{"column num_beds: 2 nulls"}},
	})
	output := buf.String()

	assert.Contains(t, output, "SCHEMA VALIDATION")
	assert.Contains(t, output, "✓ workforce (workforce): 40 rows")
	assert.Contains(t, output, "✗ capacity")
	assert.Contains(t, output, "column num_beds: 2 nulls")
	assert.Contains(t, output, "... and 1 more warnings")
}

func TestPrintMetrics(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	res := &metrics.Result{
		Overlap:   metrics.YearRange{Start: 2009, End: 2011},
		Benchmark: types.Benchmark{Name: "workforce_to_bed", LowerBound: 1.5, UpperBound: 2.5},
		Records: []types.MetricRecord{
			{Year: 2009, Sector: types.SectorPublic, Ratio: 2.0},
			{Year: 2010, Sector: types.SectorPublic, Ratio: 2.019, MismatchIndex: f64(3.0), MismatchFlag: true},
		},
	}
	p.PrintMetrics(res)
	output := buf.String()

	assert.Contains(t, output, "WORKFORCE-CAPACITY METRICS")
	assert.Contains(t, output, "Overlap:   2009-2011")
	assert.Contains(t, output, "workforce_to_bed 1.50-2.50")
	assert.Contains(t, output, "2010 Public: ratio 2.019, index +3.00")
	assert.NotContains(t, output, "2009 Public")
}

func TestPrintMetrics_NoFlags(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintMetrics(&metrics.Result{})
	assert.Contains(t, buf.String(), "No mismatched years")
}

func TestPrintMismatch(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintMismatch([]types.MismatchResult{{
		Sector: types.SectorPrivate, StartYear: 2009, EndYear: 2014, YearsAnalyzed: 5,
		YearsAffected: []int{2010, 2011, 2012}, AverageMismatch: 2.5, MaxMismatch: 4,
		CumulativeMismatch: 12.5, Severity: types.SeverityMedium, Significant: true,
	}})
	output := buf.String()

	assert.Contains(t, output, "Private (2009-2014)")
	assert.Contains(t, output, "Severity: Medium ⚠ significant")
	assert.Contains(t, output, "Affected years: 3 of 5")
}

func TestPrintMismatch_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintMismatch(nil)
	assert.Contains(t, buf.String(), "NO SECTOR MISMATCH")
}

func TestPrintArtifacts(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintArtifacts([]artifacts.Location{
		{Name: "quality_report.json", URI: "file:///out/quality_report.json", Size: 2048},
		{Name: "capacity_clean.parquet", URI: "s3://b/r/capacity_clean.parquet", Size: 12},
	})
	output := buf.String()

	assert.Contains(t, output, "PUBLISHED ARTIFACTS")
	assert.Contains(t, output, "quality_report.json  2.0 KiB")
	assert.Contains(t, output, "capacity_clean.parquet  12 B")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("x", 100))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}
