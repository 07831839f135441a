package metrics

import (
	"fmt"
	"math"
	"slices"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/types"
)

// Severity grades an average mismatch: Low below the significant threshold,
// High at or above the severe threshold, Medium in between.
func Severity(avg float64, th benchmarks.Thresholds) types.Severity {
	a := math.Abs(avg)
	switch {
	case a < th.SignificantDivergence:
		return types.SeverityLow
	case a < th.SevereDivergence:
		return types.SeverityMedium
	default:
		return types.SeverityHigh
	}
}

// Summarize aggregates metric records into one MismatchResult per sector,
// in canonical sector order. The average is taken over years with a
// non-null mismatch index.
func Summarize(records []types.MetricRecord, th benchmarks.Thresholds) []types.MismatchResult {
	bySector := map[types.Sector][]types.MetricRecord{}
	for _, r := range records {
		bySector[r.Sector] = append(bySector[r.Sector], r)
	}

	var out []types.MismatchResult
	for _, s := range types.Sectors() {
		rs := bySector[s]
		if len(rs) == 0 {
			continue
		}
		slices.SortFunc(rs, func(a, b types.MetricRecord) int { return a.Year - b.Year })

		res := types.MismatchResult{
			Sector:        s,
			StartYear:     rs[0].Year,
			EndYear:       rs[len(rs)-1].Year,
			YearsAffected: []int{},
		}
		sum := 0.0
		for _, r := range rs {
			if r.MismatchIndex == nil {
				continue
			}
			m := *r.MismatchIndex
			res.YearsAnalyzed++
			sum += m
			if math.Abs(m) > math.Abs(res.MaxMismatch) {
				res.MaxMismatch = m
			}
			if math.Abs(m) > th.SignificantDivergence {
				res.YearsAffected = append(res.YearsAffected, r.Year)
			}
		}
		res.CumulativeMismatch = sum
		if res.YearsAnalyzed > 0 {
			res.AverageMismatch = sum / float64(res.YearsAnalyzed)
		}
		res.Severity = Severity(res.AverageMismatch, th)
		res.Significant = len(res.YearsAffected) >= th.MinYearsSustained
		out = append(out, res)
	}
	return out
}

// Cumulative sums the non-null mismatch indices of sector over [start, end]
func Cumulative(records []types.MetricRecord, sector types.Sector, start, end int) (types.CumulativeMismatch, error) {
	if start > end {
		return types.CumulativeMismatch{}, &Error{Message: fmt.Sprintf("start year %d is after end year %d", start, end)}
	}
	out := types.CumulativeMismatch{Sector: sector, StartYear: start, EndYear: end}
	for _, r := range records {
		if r.Sector != sector || r.Year < start || r.Year > end || r.MismatchIndex == nil {
			continue
		}
		out.Cumulative += *r.MismatchIndex
		out.YearsAnalyzed++
	}
	if out.YearsAnalyzed > 0 {
		out.AverageAnnual = out.Cumulative / float64(out.YearsAnalyzed)
	}
	return out, nil
}

// CumulativeAll returns Cumulative for every sector present in records
func CumulativeAll(records []types.MetricRecord, window YearRange) ([]types.CumulativeMismatch, error) {
	present := map[types.Sector]bool{}
	for _, r := range records {
		present[r.Sector] = true
	}
	var out []types.CumulativeMismatch
	for _, s := range types.Sectors() {
		if !present[s] {
			continue
		}
		c, err := Cumulative(records, s, window.Start, window.End)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
