package cleaning

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/types"
)

// Step names, in execution order
const (
	StepRename     = "rename"
	StepConstants  = "constants"
	StepCategories = "categories"
	StepCoerce     = "coerce"
	StepDedup      = "dedup"
	StepMissing    = "missing"
	StepOutliers   = "outliers"
)

// OutlierSuffix is appended to a column name to form its per-column outlier flag
const OutlierSuffix = "_outlier"

// Result is a cleaned table with its audit log
type Result struct {
	Table *tabular.Table
	Log   *Log
}

// Cleaner applies Rules to raw tables. It holds no per-table state and is
// safe for concurrent use.
type Cleaner struct {
	logger *zap.Logger
}

// NewCleaner creates a cleaner that logs to logger (nil means no logging)
func NewCleaner(logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{logger: logger.Named("cleaning")}
}

type stepFunc func(*tabular.Table) (*tabular.Table, error)

// Clean standardizes raw according to rules and returns a new table.
// Clean(Clean(x)) equals Clean(x): renames already applied are skipped and
// flag columns are recomputed rather than accumulated. Under the
// drop-columns policy, columns dropped by an earlier clean may be absent.
func (c *Cleaner) Clean(raw *tabular.Table, rules Rules) (*Result, error) {
	if raw == nil {
		return nil, &Error{Message: "table is nil"}
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	rules = rules.WithDefaults()

	log := &Log{
		Table:              raw.Name(),
		RowsIn:             raw.Len(),
		NullsIn:            raw.TotalNulls(),
		Renamed:            map[string]string{},
		ConversionFailures: map[string]int{},
	}
	zlog := c.logger.With(zap.String("table", raw.Name()))
	// Columns removed by an earlier clean are tolerated as absent
	mayDrop := rules.Missing.Policy == PolicyDropColumns
	zlog.Info("cleaning table", zap.Int("rows", raw.Len()), zap.Int("columns", len(raw.Columns())))

	steps := []struct {
		name string
		fn   stepFunc
	}{
		{StepRename, func(t *tabular.Table) (*tabular.Table, error) { return rename(t, rules.ColumnMapping, mayDrop, log) }},
		{StepConstants, func(t *tabular.Table) (*tabular.Table, error) { return constants(t, rules.Constants) }},
		{StepCategories, func(t *tabular.Table) (*tabular.Table, error) {
			return standardize(t, rules.Categories, mayDrop, log, zlog)
		}},
		{StepCoerce, func(t *tabular.Table) (*tabular.Table, error) { return coerceTypes(t, rules, log, zlog) }},
		{StepDedup, func(t *tabular.Table) (*tabular.Table, error) { return dedup(t, rules.DuplicateKey, mayDrop, log) }},
		{StepMissing, func(t *tabular.Table) (*tabular.Table, error) { return handleMissing(t, rules.Missing, log) }},
		{StepOutliers, func(t *tabular.Table) (*tabular.Table, error) { return flagOutliers(t, rules.Outliers, log, zlog) }},
	}

	current := raw
	for _, s := range steps {
		next, err := s.fn(current)
		if err != nil {
			zlog.Error("cleaning step failed", zap.String("step", s.name), zap.Error(err))
			return nil, err
		}
		entry := StepLog{
			Step:          s.name,
			RowsBefore:    current.Len(),
			RowsAfter:     next.Len(),
			NullsBefore:   current.TotalNulls(),
			NullsAfter:    next.TotalNulls(),
			ColumnsBefore: len(current.Columns()),
			ColumnsAfter:  len(next.Columns()),
		}
		log.Steps = append(log.Steps, entry)
		zlog.Info("cleaning step complete",
			zap.String("step", s.name),
			zap.Int("rows_before", entry.RowsBefore),
			zap.Int("rows_after", entry.RowsAfter),
			zap.Int("nulls_before", entry.NullsBefore),
			zap.Int("nulls_after", entry.NullsAfter))
		current = next
	}

	log.RowsOut = current.Len()
	log.NullsOut = current.TotalNulls()
	if n := log.TotalConversionFailures(); n > 0 {
		zlog.Warn("conversion failures", zap.Int("count", n), zap.Any("by_column", log.ConversionFailures))
	}
	if log.DuplicatesRemoved > 0 || len(log.NearDuplicates) > 0 {
		zlog.Warn("duplicates found",
			zap.Int("removed", log.DuplicatesRemoved),
			zap.Int("near_duplicate_groups", len(log.NearDuplicates)))
	}
	return &Result{Table: current, Log: log}, nil
}

// rename applies the column mapping. A source column that is absent is an
// error unless its target already exists, meaning the mapping was applied,
// or both are absent and columns may have been dropped.
func rename(t *tabular.Table, mapping map[string]string, mayDrop bool, log *Log) (*tabular.Table, error) {
	apply := map[string]string{}
	var missing []string
	for _, from := range sortedKeys(mapping) {
		to := mapping[from]
		switch {
		case from == to:
		case t.HasColumn(from):
			apply[from] = to
		case t.HasColumn(to), mayDrop:
		default:
			missing = append(missing, from)
		}
	}
	if len(missing) > 0 {
		return nil, &ColumnMappingError{Table: t.Name(), Step: StepRename, Columns: missing}
	}
	if len(apply) == 0 {
		return t, nil
	}
	out, err := t.Rename(apply)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to rename columns of %s", t.Name()), Cause: err}
	}
	maps.Copy(log.Renamed, apply)
	return out, nil
}

func constants(t *tabular.Table, consts map[string]string) (*tabular.Table, error) {
	out := t
	for _, col := range sortedKeys(consts) {
		var err error
		out, err = out.SetColumn(tabular.Column{Name: col, Kind: tabular.KindString}, tabular.Constant(out.Len(), consts[col]))
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("failed to set constant column %s", col), Cause: err}
		}
	}
	return out, nil
}

var spaces = regexp.MustCompile(`\s+`)

func normalizeCategory(s string) string {
	return strings.ToLower(spaces.ReplaceAllString(strings.TrimSpace(s), " "))
}

func standardize(t *tabular.Table, rules []CategoryRule, mayDrop bool, log *Log, zlog *zap.Logger) (*tabular.Table, error) {
	var missing []string
	present := rules[:0:0]
	for _, r := range rules {
		switch {
		case t.HasColumn(r.Column):
			present = append(present, r)
		case mayDrop:
			zlog.Warn("skipping categories of dropped column", zap.String("column", r.Column))
		default:
			missing = append(missing, r.Column)
		}
	}
	if len(missing) > 0 {
		return nil, &ColumnMappingError{Table: t.Name(), Step: StepCategories, Columns: missing}
	}

	out := t
	for _, r := range present {
		lookup := make(map[string]string, len(r.Mapping)+len(r.Canonical))
		for _, canon := range r.Canonical {
			lookup[normalizeCategory(canon)] = canon
		}
		for _, canon := range r.Mapping {
			lookup[normalizeCategory(canon)] = canon
		}
		for raw, canon := range r.Mapping {
			lookup[normalizeCategory(raw)] = canon
		}

		entry := CategoryLog{Column: r.Column, Mapped: map[string]string{}}
		unmapped := map[string]bool{}
		kind, _ := out.Kind(r.Column)
		if kind != tabular.KindString {
			return nil, &Error{Message: fmt.Sprintf("category column %s of %s is %s, not string", r.Column, t.Name(), kind)}
		}

		var err error
		out, err = out.MapColumn(r.Column, tabular.KindString, func(v any) any {
			s, ok := v.(string)
			if !ok {
				return v
			}
			canon, found := lookup[normalizeCategory(s)]
			if !found {
				unmapped[s] = true
				return s
			}
			if canon != s {
				entry.Mapped[s] = canon
				entry.Changed++
			}
			return canon
		})
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("failed to standardize %s", r.Column), Cause: err}
		}
		entry.Unmapped = sortedKeys(unmapped)
		log.Categories = append(log.Categories, entry)
	}
	return out, nil
}

func coerceTypes(t *tabular.Table, rules Rules, log *Log, zlog *zap.Logger) (*tabular.Table, error) {
	tokens := make(map[string]bool, len(rules.NullTokens))
	for _, tok := range rules.NullTokens {
		tokens[strings.ToLower(strings.TrimSpace(tok))] = true
	}

	var missing []string
	for _, col := range sortedKeys(rules.Types) {
		if t.HasColumn(col) {
			continue
		}
		if rules.Missing.Policy == PolicyDropColumns {
			zlog.Warn("skipping coercion of dropped column", zap.String("column", col))
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		return nil, &ColumnMappingError{Table: t.Name(), Step: StepCoerce, Columns: missing}
	}

	out := t
	for _, col := range sortedKeys(rules.Types) {
		if !out.HasColumn(col) {
			continue
		}
		kind := rules.Types[col]
		failures := 0
		var err error
		out, err = out.MapColumn(col, kind, func(v any) any {
			nv, failed := coerce(v, kind, tokens)
			if failed {
				failures++
			}
			return nv
		})
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("failed to coerce %s", col), Cause: err}
		}
		if failures > 0 {
			log.ConversionFailures[col] += failures
		}
	}
	return out, nil
}

// dedup removes rows identical to an earlier row with the same key and
// reports same-key rows that differ elsewhere. When columns may have been
// dropped, absent key columns are left out of the key.
func dedup(t *tabular.Table, key []string, mayDrop bool, log *Log) (*tabular.Table, error) {
	var missing, present []string
	for _, k := range key {
		if t.HasColumn(k) {
			present = append(present, k)
		} else {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 && !mayDrop {
		return nil, &ColumnMappingError{Table: t.Name(), Step: StepDedup, Columns: missing}
	}
	key = present
	if len(key) == 0 {
		key = t.ColumnNames()
	}

	type group struct {
		first int
		rows  []string
		index []int
	}
	groups := map[string]*group{}
	var order []string
	drop := map[int]bool{}
	for i := 0; i < t.Len(); i++ {
		k := t.Key(i, key)
		full := t.RowKey(i)
		g, ok := groups[k]
		if !ok {
			groups[k] = &group{first: i, rows: []string{full}, index: []int{i}}
			order = append(order, k)
			continue
		}
		if slices.Contains(g.rows, full) {
			drop[i] = true
			continue
		}
		g.rows = append(g.rows, full)
		g.index = append(g.index, i)
	}

	for _, k := range order {
		g := groups[k]
		if len(g.index) < 2 {
			continue
		}
		keyVals := make(map[string]any, len(key))
		for _, col := range key {
			keyVals[col] = t.Value(g.first, col)
		}
		log.NearDuplicates = append(log.NearDuplicates, NearDuplicate{Key: keyVals, Rows: g.index})
	}

	log.DuplicatesRemoved += len(drop)
	if len(drop) == 0 {
		return t, nil
	}
	return t.Filter(func(i int) bool { return !drop[i] }), nil
}

func sparseColumns(t *tabular.Table, thresholdPct float64) []string {
	if t.Len() == 0 {
		return nil
	}
	var cols []string
	for _, c := range dataColumns(t) {
		if pct := float64(t.NullCount(c)) / float64(t.Len()) * 100; pct > thresholdPct {
			cols = append(cols, c)
		}
	}
	return cols
}

func dropExactDuplicates(t *tabular.Table, log *Log) *tabular.Table {
	cols := dataColumns(t)
	seen := make(map[string]bool, t.Len())
	removed := 0
	out := t.Filter(func(i int) bool {
		k := t.Key(i, cols)
		if seen[k] {
			removed++
			return false
		}
		seen[k] = true
		return true
	})
	log.DuplicatesRemoved += removed
	return out
}

func isFlagColumn(name string) bool {
	return name == types.ColHasMissingValues || name == types.ColOutlierFlag || strings.HasSuffix(name, OutlierSuffix)
}

func dataColumns(t *tabular.Table) []string {
	var cols []string
	for _, c := range t.ColumnNames() {
		if !isFlagColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func handleMissing(t *tabular.Table, rules MissingRules, log *Log) (*tabular.Table, error) {
	log.Missing = MissingLog{Policy: rules.Policy, NullsByColumn: map[string]int{}}
	for _, c := range dataColumns(t) {
		if n := t.NullCount(c); n > 0 {
			log.Missing.NullsByColumn[c] = n
		}
	}

	out := t
	switch rules.Policy {
	case PolicyDropRows:
		cols := dataColumns(t)
		out = t.Filter(func(i int) bool {
			for _, c := range cols {
				if t.Value(i, c) == nil {
					return false
				}
			}
			return true
		})
		log.Missing.RowsDropped = t.Len() - out.Len()
	case PolicyDropColumns:
		// Rows that differed only in a dropped column become duplicates, and
		// removing them can push another column over the threshold.
		for {
			drop := sparseColumns(out, rules.ThresholdPercent)
			if len(drop) == 0 {
				break
			}
			out = dropExactDuplicates(out.DropColumns(drop...), log)
			log.Missing.ColumnsDropped = append(log.Missing.ColumnsDropped, drop...)
		}
	}

	cols := dataColumns(out)
	flags := make([]any, out.Len())
	for i := range flags {
		has := false
		for _, c := range cols {
			if out.Value(i, c) == nil {
				has = true
				break
			}
		}
		if has {
			log.Missing.RowsFlagged++
		}
		flags[i] = has
	}
	return out.SetColumn(tabular.Column{Name: types.ColHasMissingValues, Kind: tabular.KindBool}, flags)
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	}
	return 0, false
}

func flagOutliers(t *tabular.Table, rules OutlierRules, log *Log, zlog *zap.Logger) (*tabular.Table, error) {
	log.Outliers = OutlierLog{Method: rules.Method, Threshold: rules.Threshold, ByColumn: map[string]int{}}
	flaggedRows := make([]bool, t.Len())
	out := t
	for _, col := range rules.Columns {
		kind, ok := t.Kind(col)
		if !ok || (kind != tabular.KindInt && kind != tabular.KindFloat) {
			zlog.Warn("skipping outlier detection", zap.String("column", col), zap.Bool("present", ok))
			log.Outliers.Skipped = append(log.Outliers.Skipped, col)
			continue
		}

		var xs []float64
		for _, v := range t.ColumnValues(col) {
			if f, ok := numeric(v); ok {
				xs = append(xs, f)
			}
		}
		isOutlier := detector(xs, rules.Method, rules.Threshold)
		if isOutlier == nil {
			zlog.Info("no spread, marking no outliers", zap.String("column", col))
		}

		flags := make([]any, t.Len())
		count := 0
		for i := range flags {
			f, ok := numeric(t.Value(i, col))
			flagged := ok && isOutlier != nil && isOutlier(f)
			if flagged {
				count++
				flaggedRows[i] = true
			}
			flags[i] = flagged
		}
		log.Outliers.ByColumn[col] = count

		var err error
		out, err = out.SetColumn(tabular.Column{Name: col + OutlierSuffix, Kind: tabular.KindBool}, flags)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("failed to flag outliers in %s", col), Cause: err}
		}
	}

	overall := make([]any, t.Len())
	for i, f := range flaggedRows {
		overall[i] = f
		if f {
			log.Outliers.RowsFlagged++
		}
	}
	return out.SetColumn(tabular.Column{Name: types.ColOutlierFlag, Kind: tabular.KindBool}, overall)
}

// detector returns a predicate for outlying values, or nil when the
// column has no spread.
func detector(xs []float64, method string, threshold float64) func(float64) bool {
	switch method {
	case MethodIQR:
		if len(xs) == 0 {
			return nil
		}
		s := sortedCopy(xs)
		q1, q3 := quantile(s, 0.25), quantile(s, 0.75)
		iqr := q3 - q1
		if iqr == 0 {
			return nil
		}
		lo, hi := q1-threshold*iqr, q3+threshold*iqr
		return func(x float64) bool { return x < lo || x > hi }
	default:
		std := sampleStd(xs)
		if std == 0 {
			return nil
		}
		m := mean(xs)
		return func(x float64) bool { return math.Abs(x-m) > threshold*std }
	}
}
