package metrics

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/types"
)

// Exclusion reasons
const (
	ReasonOutsideWindow  = "outside overlap window"
	ReasonNoCapacity     = "no capacity data"
	ReasonNoWorkforce    = "no workforce data"
	ReasonDivisionGuard  = "division guard"
	ReasonInactiveSector = "inactive sector excluded"
)

// Exclusion is a (year, sector) left out of the metric output
type Exclusion struct {
	Year   int          `json:"year"`
	Sector types.Sector `json:"sector"`
	Reason string       `json:"reason"`
}

// Result is the output of ComputeMetrics
type Result struct {
	Records      []types.MetricRecord        `json:"records"`
	Comparisons  []types.BenchmarkComparison `json:"comparisons"`
	Excluded     []Exclusion                 `json:"excluded"`
	Guards       []DivisionGuardError        `json:"guards"`
	Overlap      YearRange                   `json:"overlap"`
	Benchmark    types.Benchmark             `json:"benchmark"`
	NullsSkipped map[string]int              `json:"nulls_skipped"`
	BaseYear     int                         `json:"base_year,omitempty"`
	Indexed      []types.IndexedRecord       `json:"indexed"`
}

// Engine computes metrics. It holds only read-only configuration and is safe
// for concurrent use.
type Engine struct {
	registry *benchmarks.Registry
	opts     Options
	logger   *zap.Logger
}

// NewEngine creates an engine over registry. Unset options take their defaults.
func NewEngine(registry *benchmarks.Registry, opts Options, logger *zap.Logger) (*Engine, error) {
	if registry == nil {
		return nil, &Error{Message: "benchmark registry is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	for _, name := range []string{opts.Benchmark, opts.CompositionBenchmark} {
		if _, err := registry.Get(name); err != nil {
			return nil, &Error{Message: "benchmark not available", Cause: err}
		}
	}
	return &Engine{registry: registry, opts: opts, logger: logger.Named("metrics")}, nil
}

// Options returns the effective options
func (e *Engine) Options() Options { return e.opts }

type key struct {
	year   int
	sector types.Sector
}

func sectorRank(s types.Sector) int {
	if i := slices.Index(types.Sectors(), s); i >= 0 {
		return i
	}
	return len(types.Sectors())
}

func compareKeys(a, b key) int {
	if c := cmp.Compare(a.year, b.year); c != 0 {
		return c
	}
	return cmp.Compare(sectorRank(a.sector), sectorRank(b.sector))
}

// totals sums non-null values per key. A key is present only when at least
// one contributing value was non-null; rows tracks keys with any rows at all.
type totals struct {
	sum  map[key]int64
	rows map[key]bool
}

func newTotals() totals {
	return totals{sum: map[key]int64{}, rows: map[key]bool{}}
}

func (t totals) add(k key, v *int64) bool {
	t.rows[k] = true
	if v == nil {
		return false
	}
	t.sum[k] += *v
	return true
}

func (t totals) hasYear(year int) bool {
	for k := range t.sum {
		if k.year == year {
			return true
		}
	}
	return false
}

func (t totals) span() (YearRange, bool) {
	first := true
	var r YearRange
	for k := range t.rows {
		if first || k.year < r.Start {
			r.Start = k.year
		}
		if first || k.year > r.End {
			r.End = k.year
		}
		first = false
	}
	return r, !first
}

type aggregates struct {
	workforce totals
	capacity  totals
	inactive  map[key]bool
	nulls     map[string]int
}

// aggregate sums workforce counts and included capacity per (year, sector)
func (e *Engine) aggregate(workforce []types.WorkforceRecord, capacity []types.CapacityRecord) aggregates {
	agg := aggregates{workforce: newTotals(), capacity: newTotals(), inactive: map[key]bool{}, nulls: map[string]int{}}
	for _, r := range workforce {
		k := key{r.Year, r.Sector}
		if e.skipSector(r.Sector) {
			agg.inactive[k] = true
			continue
		}
		if !agg.workforce.add(k, r.Count) {
			agg.nulls["workforce"]++
		}
	}
	for _, r := range capacity {
		if !e.institutionIncluded(r.InstitutionType) {
			continue
		}
		k := key{r.Year, r.Sector}
		if e.skipSector(r.Sector) {
			agg.inactive[k] = true
			continue
		}
		if !agg.capacity.add(k, e.capacityValue(r)) {
			agg.nulls["capacity"]++
		}
	}
	return agg
}

func (e *Engine) skipSector(s types.Sector) bool {
	return s == types.SectorInactive && e.opts.InactivePolicy == InactiveExclude
}

func (e *Engine) capacityValue(r types.CapacityRecord) *int64 {
	if e.opts.CapacityMeasure == MeasureFacilities {
		return r.NumFacilities
	}
	return r.NumBeds
}

func (e *Engine) institutionIncluded(t string) bool {
	for _, want := range e.opts.InstitutionTypes {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return true
		}
	}
	return false
}

// ComputeMetrics joins workforce and capacity totals per (year, sector) within
// overlap and derives ratios, growth rates, mismatch indices and benchmark
// flags. A zero overlap means the intersection of both domains' year spans.
func (e *Engine) ComputeMetrics(workforce []types.WorkforceRecord, capacity []types.CapacityRecord, overlap YearRange) (*Result, error) {
	if !overlap.IsZero() && overlap.Empty() {
		return nil, &Error{Message: "overlap start year is after end year: " + overlap.String()}
	}
	bench, err := e.registry.Get(e.opts.Benchmark)
	if err != nil {
		return nil, err
	}

	res := &Result{Benchmark: bench, NullsSkipped: map[string]int{}}

	// 1. Aggregate both domains per (year, sector)
	agg := e.aggregate(workforce, capacity)
	wf, cp, inactiveSeen := agg.workforce, agg.capacity, agg.inactive
	maps.Copy(res.NullsSkipped, agg.nulls)

	// 2. Resolve the overlap window
	res.Overlap = overlap
	if overlap.IsZero() {
		ws, okW := wf.span()
		cs, okC := cp.span()
		if okW && okC {
			res.Overlap = YearRange{Start: max(ws.Start, cs.Start), End: min(ws.End, cs.End)}
		} else {
			res.Overlap = YearRange{Start: 1, End: 0}
		}
	}
	log := e.logger.With(zap.Stringer("overlap", res.Overlap), zap.String("benchmark", bench.Name))
	if res.Overlap.Empty() {
		log.Warn("workforce and capacity years do not overlap")
	}

	// 3. Inner join restricted to the window
	all := map[key]bool{}
	for k := range wf.rows {
		all[k] = true
	}
	for k := range cp.rows {
		all[k] = true
	}
	for k := range inactiveSeen {
		all[k] = true
	}
	keys := make([]key, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	type joined struct {
		key       key
		workforce int64
		capacity  int64
		ratio     float64
	}
	var rows []joined
	for _, k := range keys {
		_, hasW := wf.rows[k]
		_, hasC := cp.rows[k]
		switch {
		case inactiveSeen[k] && !hasW && !hasC:
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonInactiveSector})
			continue
		case !res.Overlap.Contains(k.year):
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonOutsideWindow})
			continue
		case !hasC:
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonNoCapacity})
			continue
		case !hasW:
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonNoWorkforce})
			continue
		}
		wTotal, wOK := wf.sum[k]
		if !wOK {
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonNoWorkforce})
			continue
		}
		cTotal, cOK := cp.sum[k]
		if !cOK || cTotal == 0 {
			guard := DivisionGuardError{Metric: "workforce_to_capacity", Year: k.year, Sector: k.sector, Numerator: float64(wTotal)}
			if cOK {
				zero := 0.0
				guard.Denominator = &zero
			}
			res.Guards = append(res.Guards, guard)
			res.Excluded = append(res.Excluded, Exclusion{k.year, k.sector, ReasonDivisionGuard})
			log.Warn("ratio omitted", zap.Int("year", k.year), zap.String("sector", string(k.sector)), zap.Error(&guard))
			continue
		}
		rows = append(rows, joined{key: k, workforce: wTotal, capacity: cTotal, ratio: float64(wTotal) / float64(cTotal)})
	}

	// 4. Growth per sector series within the window
	ratios := make(map[key]float64, len(rows))
	for _, r := range rows {
		ratios[r.key] = r.ratio
	}
	for _, r := range rows {
		prev := key{r.key.year - 1, r.key.sector}
		rec := types.MetricRecord{
			Year:           r.key.year,
			Sector:         r.key.sector,
			TotalWorkforce: r.workforce,
			TotalCapacity:  r.capacity,
			Ratio:          r.ratio,
		}
		if p, ok := ratios[prev]; ok {
			rec.PriorYearRatio = &p
		}
		if res.Overlap.Contains(prev.year) {
			rec.WorkforceGrowthRate = growth(wf, prev, r.key)
			rec.CapacityGrowthRate = growth(cp, prev, r.key)
		}
		if rec.WorkforceGrowthRate != nil && rec.CapacityGrowthRate != nil {
			m := *rec.WorkforceGrowthRate - *rec.CapacityGrowthRate
			rec.MismatchIndex = &m
			rec.MismatchFlag = math.Abs(m) > e.opts.Thresholds.SignificantDivergence
		}

		cmpRec := types.BenchmarkComparison{Year: rec.Year, Sector: rec.Sector, Benchmark: bench.Name, Ratio: rec.Ratio}
		if rec.Sector == types.SectorInactive && e.opts.InactivePolicy == InactiveExcludeFromBenchmark {
			cmpRec.Status = types.StatusNotCompared
		} else {
			rec.WithinBenchmark = bench.Contains(rec.Ratio)
			dev := bench.Deviation(rec.Ratio)
			cmpRec.Deviation = &dev
			cmpRec.Status = bench.Status(rec.Ratio)
		}
		res.Records = append(res.Records, rec)
		res.Comparisons = append(res.Comparisons, cmpRec)
	}

	// 5. Growth indexed to the base year
	if base := e.opts.BaseYear; base != 0 || len(res.Records) > 0 {
		if base == 0 {
			base = res.Records[0].Year
		}
		indexed, err := indexedGrowth(agg, base)
		if err != nil {
			return nil, err
		}
		res.BaseYear = base
		res.Indexed = indexed
		attachIndex(res.Records, indexed)
	}

	flagged := 0
	for _, r := range res.Records {
		if r.MismatchFlag {
			flagged++
		}
	}
	for _, x := range res.Excluded {
		log.Info("excluded from metrics", zap.Int("year", x.Year), zap.String("sector", string(x.Sector)), zap.String("reason", x.Reason))
	}
	log.Info("metrics computed",
		zap.Int("records", len(res.Records)),
		zap.Int("excluded", len(res.Excluded)),
		zap.Int("guards", len(res.Guards)),
		zap.Int("mismatch_flags", flagged))
	return res, nil
}

// growth returns the percentage change from prev to cur, or nil when the
// predecessor is absent or zero.
func growth(t totals, prev, cur key) *float64 {
	p, ok := t.sum[prev]
	if !ok || p == 0 {
		return nil
	}
	c, ok := t.sum[cur]
	if !ok {
		return nil
	}
	g := float64(c-p) * 100 / float64(p)
	return &g
}
