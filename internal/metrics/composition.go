package metrics

import (
	"slices"

	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/types"
)

// CompositionResult is the output of ComputeComposition
type CompositionResult struct {
	Records   []types.CompositionRecord `json:"records"`
	Guards    []DivisionGuardError      `json:"guards"`
	Excluded  []Exclusion               `json:"excluded"`
	Benchmark types.Benchmark           `json:"benchmark"`
}

// ComputeComposition computes the numerator-to-denominator profession ratio
// per (year, sector) and each profession's share of the headcount. A zero
// range covers every year present.
func (e *Engine) ComputeComposition(workforce []types.WorkforceRecord, years YearRange) (*CompositionResult, error) {
	if !years.IsZero() && years.Empty() {
		return nil, &Error{Message: "composition start year is after end year: " + years.String()}
	}
	bench, err := e.registry.Get(e.opts.CompositionBenchmark)
	if err != nil {
		return nil, err
	}

	counts := map[key]map[types.Profession]int64{}
	var keys []key
	for _, r := range workforce {
		if e.skipSector(r.Sector) || r.Count == nil {
			continue
		}
		if !years.IsZero() && !years.Contains(r.Year) {
			continue
		}
		k := key{r.Year, r.Sector}
		if counts[k] == nil {
			counts[k] = map[types.Profession]int64{}
			keys = append(keys, k)
		}
		counts[k][r.Profession] += *r.Count
	}
	slices.SortFunc(keys, compareKeys)

	res := &CompositionResult{Benchmark: bench}
	metric := string(e.opts.Numerator) + "_to_" + string(e.opts.Denominator)
	for _, k := range keys {
		c := counts[k]
		num, hasNum := c[e.opts.Numerator]
		den, hasDen := c[e.opts.Denominator]
		if !hasNum {
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, "no " + string(e.opts.Numerator) + " records"})
			continue
		}
		if !hasDen || den == 0 {
			guard := DivisionGuardError{Metric: metric, Year: k.year, Sector: k.sector, Numerator: float64(num)}
			if hasDen {
				zero := 0.0
				guard.Denominator = &zero
			}
			res.Guards = append(res.Guards, guard)
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonDivisionGuard})
			e.logger.Warn("composition ratio omitted", zap.Int("year", k.year), zap.String("sector", string(k.sector)), zap.Error(&guard))
			continue
		}

		var total int64
		for _, n := range c {
			total += n
		}
		shares := make(map[types.Profession]float64, len(c))
		for p, n := range c {
			if total > 0 {
				shares[p] = float64(n) * 100 / float64(total)
			}
		}
		ratio := float64(num) / float64(den)
		res.Records = append(res.Records, types.CompositionRecord{
			Year:              k.year,
			Sector:            k.sector,
			Numerator:         e.opts.Numerator,
			Denominator:       e.opts.Denominator,
			NumeratorCount:    num,
			DenominatorCount:  den,
			Ratio:             ratio,
			WithinNormalRange: bench.Contains(ratio),
			Shares:            shares,
		})
	}
	e.logger.Info("composition computed", zap.String("metric", metric), zap.Int("records", len(res.Records)), zap.Int("guards", len(res.Guards)))
	return res, nil
}
