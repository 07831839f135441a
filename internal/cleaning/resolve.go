package cleaning

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// Unmapped-category policies
const (
	UnmappedFail     = "fail"
	UnmappedFallback = "fallback"
	UnmappedExclude  = "exclude"
)

// Resolution records what ResolveUnmapped did
type Resolution struct {
	Column       string   `json:"column"`
	Policy       string   `json:"policy"`
	Values       []string `json:"values"`
	RowsAffected int      `json:"rows_affected"`
	Fallback     string   `json:"fallback,omitempty"`
}

// ResolveUnmapped applies the caller's decision for values of column that are
// outside allowed. UnmappedFail leaves the table unchanged so the schema
// validator reports the values; UnmappedFallback rewrites them to fallback;
// UnmappedExclude drops the rows.
func (c *Cleaner) ResolveUnmapped(t *tabular.Table, column string, allowed []string, policy, fallback string) (*tabular.Table, *Resolution, error) {
	if !t.HasColumn(column) {
		return nil, nil, &ColumnMappingError{Table: t.Name(), Step: "resolve_unmapped", Columns: []string{column}}
	}
	if policy == "" {
		policy = UnmappedFail
	}

	res := &Resolution{Column: column, Policy: policy}
	outside := func(v any) (string, bool) {
		s, ok := v.(string)
		return s, ok && !slices.Contains(allowed, s)
	}
	seen := map[string]bool{}
	for _, v := range t.ColumnValues(column) {
		if s, bad := outside(v); bad {
			res.RowsAffected++
			seen[s] = true
		}
	}
	res.Values = sortedKeys(seen)
	if res.RowsAffected == 0 {
		return t, res, nil
	}

	log := c.logger.With(zap.String("table", t.Name()), zap.String("column", column), zap.String("policy", policy))
	switch policy {
	case UnmappedFail:
		log.Warn("unmapped categories left for validation", zap.Strings("values", res.Values))
		return t, res, nil
	case UnmappedFallback:
		if !slices.Contains(allowed, fallback) {
			return nil, nil, &RulesError{Field: "fallback", Message: fmt.Sprintf("%q is not an allowed value of %s", fallback, column)}
		}
		res.Fallback = fallback
		out, err := t.MapColumn(column, tabular.KindString, func(v any) any {
			if _, bad := outside(v); bad {
				return fallback
			}
			return v
		})
		if err != nil {
			return nil, nil, &Error{Message: fmt.Sprintf("failed to apply fallback to %s", column), Cause: err}
		}
		log.Warn("unmapped categories replaced", zap.Strings("values", res.Values), zap.Int("rows", res.RowsAffected), zap.String("fallback", fallback))
		return out, res, nil
	case UnmappedExclude:
		out := t.Filter(func(i int) bool {
			_, bad := outside(t.Value(i, column))
			return !bad
		})
		log.Warn("rows with unmapped categories excluded", zap.Strings("values", res.Values), zap.Int("rows", res.RowsAffected))
		return out, res, nil
	default:
		return nil, nil, &RulesError{Field: "unmapped_policy", Message: fmt.Sprintf("unknown policy %q", policy)}
	}
}
