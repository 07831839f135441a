package metrics

import (
	"slices"

	"github.com/jonathan/workforce-capacity/internal/types"
)

// IndexedGrowth expresses every (year, sector) workforce and capacity total
// relative to the same sector's baseYear total (= 100). It fails with a
// *BaseYearError when either domain has no data for baseYear.
func (e *Engine) IndexedGrowth(workforce []types.WorkforceRecord, capacity []types.CapacityRecord, baseYear int) ([]types.IndexedRecord, error) {
	return indexedGrowth(e.aggregate(workforce, capacity), baseYear)
}

func indexedGrowth(agg aggregates, baseYear int) ([]types.IndexedRecord, error) {
	for _, d := range []struct {
		name string
		t    totals
	}{{"workforce", agg.workforce}, {"capacity", agg.capacity}} {
		if !d.t.hasYear(baseYear) {
			return nil, &BaseYearError{Year: baseYear, Domain: d.name}
		}
	}

	all := map[key]bool{}
	for k := range agg.workforce.sum {
		all[k] = true
	}
	for k := range agg.capacity.sum {
		all[k] = true
	}
	keys := make([]key, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	out := make([]types.IndexedRecord, 0, len(keys))
	for _, k := range keys {
		base := key{baseYear, k.sector}
		out = append(out, types.IndexedRecord{
			Year:           k.year,
			Sector:         k.sector,
			BaseYear:       baseYear,
			WorkforceIndex: index(agg.workforce, base, k),
			CapacityIndex:  index(agg.capacity, base, k),
		})
	}
	return out, nil
}

// index returns cur as a percentage of base, or nil when either is missing
// or base is zero.
func index(t totals, base, cur key) *float64 {
	b, ok := t.sum[base]
	if !ok || b == 0 {
		return nil
	}
	c, ok := t.sum[cur]
	if !ok {
		return nil
	}
	v := float64(c) * 100 / float64(b)
	return &v
}

func attachIndex(records []types.MetricRecord, indexed []types.IndexedRecord) {
	byKey := make(map[key]types.IndexedRecord, len(indexed))
	for _, r := range indexed {
		byKey[key{r.Year, r.Sector}] = r
	}
	for i := range records {
		if r, ok := byKey[key{records[i].Year, records[i].Sector}]; ok {
			records[i].WorkforceIndex = r.WorkforceIndex
			records[i].CapacityIndex = r.CapacityIndex
		}
	}
}
