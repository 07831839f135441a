// Package observability provides logging, console summaries and run metrics for the pipeline.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/workforce-capacity/internal/artifacts"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/types"
	"github.com/jonathan/workforce-capacity/internal/validation"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintCleaning outputs rows, nulls and flags per cleaned table.
func (p *Printer) PrintCleaning(logs []*cleaning.Log) {
	if len(logs) == 0 {
		return
	}

	var sb strings.Builder
	for i, l := range logs {
		sb.WriteString(fmt.Sprintf("%s\n", l.Table))
		sb.WriteString(fmt.Sprintf("  Rows:     %d -> %d", l.RowsIn, l.RowsOut))
		if l.DuplicatesRemoved > 0 {
			sb.WriteString(fmt.Sprintf(" (%d duplicates)", l.DuplicatesRemoved))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  Nulls:    %d -> %d\n", l.NullsIn, l.NullsOut))
		if failures := sumCounts(l.ConversionFailures); failures > 0 {
			sb.WriteString(fmt.Sprintf("  Failed conversions: %d\n", failures))
		}
		if l.Outliers.RowsFlagged > 0 {
			sb.WriteString(fmt.Sprintf("  Outliers: %d rows (%s)\n", l.Outliers.RowsFlagged, l.Outliers.Method))
		}
		for _, c := range l.Categories {
			if len(c.Unmapped) > 0 {
				sb.WriteString(fmt.Sprintf("  ⚠ unmapped %s: %s\n", c.Column, strings.Join(c.Unmapped, ", ")))
			}
		}
		if len(l.NearDuplicates) > 0 {
			sb.WriteString(fmt.Sprintf("  ⚠ %d near-duplicate keys\n", len(l.NearDuplicates)))
		}
		if i < len(logs)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("DATA CLEANING", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValidation outputs the quality gate outcome for each table.
func (p *Printer) PrintValidation(reports []*validation.Report) {
	if len(reports) == 0 {
		return
	}

	var sb strings.Builder
	for _, r := range reports {
		mark := "✓"
		if !r.Passed {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s): %d rows\n", mark, r.Table, r.Contract, r.Rows))
		if r.Duplicates > 0 {
			sb.WriteString(fmt.Sprintf("    duplicates: %d\n", r.Duplicates))
		}
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("    %s\n", f))
		}
		count := min(len(r.Warnings), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("    ⚠ %s\n", r.Warnings[i]))
		}
		if len(r.Warnings) > 3 {
			sb.WriteString(fmt.Sprintf("    ... and %d more warnings\n", len(r.Warnings)-3))
		}
	}

	p.printBox("SCHEMA VALIDATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMetrics outputs the metric rows, flagging mismatched years.
func (p *Printer) PrintMetrics(res *metrics.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Overlap:   %s\n", res.Overlap))
	sb.WriteString(fmt.Sprintf("Benchmark: %s %.2f-%.2f\n", res.Benchmark.Name, res.Benchmark.LowerBound, res.Benchmark.UpperBound))
	sb.WriteString(fmt.Sprintf("Records:   %d (excluded %d, guarded %d)\n\n", len(res.Records), len(res.Excluded), len(res.Guards)))

	flagged := make([]types.MetricRecord, 0)
	for _, r := range res.Records {
		if r.MismatchFlag {
			flagged = append(flagged, r)
		}
	}
	if len(flagged) == 0 {
		sb.WriteString("No mismatched years")
	} else {
		sb.WriteString("Mismatched years:\n")
		count := min(len(flagged), maxItemsToShow)
		for i := 0; i < count; i++ {
			r := flagged[i]
			sb.WriteString(fmt.Sprintf("  • %d %s: ratio %.3f, index %+.2f\n", r.Year, r.Sector, r.Ratio, deref(r.MismatchIndex)))
		}
		if len(flagged) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more", len(flagged)-maxItemsToShow))
		}
	}

	p.printBox("WORKFORCE-CAPACITY METRICS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMismatch outputs the per-sector mismatch summaries.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintMismatch(results []types.MismatchResult) {
	if len(results) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO SECTOR MISMATCH")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%s (%d-%d)\n", r.Sector, r.StartYear, r.EndYear))
		sb.WriteString(fmt.Sprintf("  Severity: %s", r.Severity))
		if r.Significant {
			sb.WriteString(" ⚠ significant")
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  Avg %+.2f  Max %+.2f  Cum %+.2f\n", r.AverageMismatch, r.MaxMismatch, r.CumulativeMismatch))
		sb.WriteString(fmt.Sprintf("  Affected years: %d of %d\n", len(r.YearsAffected), r.YearsAnalyzed))
		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("SECTOR MISMATCH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArtifacts outputs where the run's artifacts were published.
func (p *Printer) PrintArtifacts(locations []artifacts.Location) {
	if len(locations) == 0 {
		return
	}

	var sb strings.Builder
	for _, l := range locations {
		sb.WriteString(fmt.Sprintf("• %s  %s\n", l.Name, humanBytes(l.Size)))
		sb.WriteString(fmt.Sprintf("  %s\n", l.URI))
	}

	p.printBox("PUBLISHED ARTIFACTS", strings.TrimSuffix(sb.String(), "\n"))
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
