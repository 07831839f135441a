package cleaning

import (
	"fmt"
	"slices"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/validation"
)

// Outlier detection methods
const (
	MethodZScore = "zscore"
	MethodIQR    = "iqr"
)

// Missing-value policies
const (
	PolicyFlag        = "flag"
	PolicyDropRows    = "drop_rows"
	PolicyDropColumns = "drop_columns_above_threshold"
)

// Defaults applied by WithDefaults
const (
	DefaultZScoreThreshold  = 3.0
	DefaultIQRMultiplier    = 1.5
	DefaultDropThresholdPct = 50.0
)

// DefaultNullTokens are raw cell values read as null during coercion
var DefaultNullTokens = []string{"", "na", "n/a", "-", "null"}

// CategoryRule standardizes a categorical column. Lookup on the raw side
// ignores case and surrounding or repeated whitespace.
type CategoryRule struct {
	Column    string            `json:"column" yaml:"column" validate:"required"`
	Mapping   map[string]string `json:"mapping" yaml:"mapping"`
	Canonical []string          `json:"canonical,omitempty" yaml:"canonical,omitempty"`
}

// OutlierRules configures outlier flagging
type OutlierRules struct {
	Method    string   `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=zscore iqr"`
	Threshold float64  `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"gte=0"`
	Columns   []string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// MissingRules configures missing-value handling
type MissingRules struct {
	Policy           string  `json:"policy,omitempty" yaml:"policy,omitempty" validate:"omitempty,oneof=flag drop_rows drop_columns_above_threshold"`
	ThresholdPercent float64 `json:"threshold_percent,omitempty" yaml:"threshold_percent,omitempty" validate:"gte=0,lte=100"`
}

// Rules is the cleaning descriptor for one raw table
type Rules struct {
	ColumnMapping map[string]string       `json:"column_mapping,omitempty" yaml:"column_mapping,omitempty"`
	Constants     map[string]string       `json:"constants,omitempty" yaml:"constants,omitempty"`
	Categories    []CategoryRule          `json:"categories,omitempty" yaml:"categories,omitempty" validate:"dive"`
	Types         map[string]tabular.Kind `json:"types,omitempty" yaml:"types,omitempty"`
	NullTokens    []string                `json:"null_tokens,omitempty" yaml:"null_tokens,omitempty"`
	DuplicateKey  []string                `json:"duplicate_key,omitempty" yaml:"duplicate_key,omitempty"`
	Outliers      OutlierRules            `json:"outliers,omitempty" yaml:"outliers,omitempty"`
	Missing       MissingRules            `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// WithDefaults returns a copy of r with unset policies filled in
func (r Rules) WithDefaults() Rules {
	out := r
	if out.NullTokens == nil {
		out.NullTokens = slices.Clone(DefaultNullTokens)
	}
	if out.Outliers.Method == "" {
		out.Outliers.Method = MethodZScore
	}
	if out.Outliers.Threshold == 0 {
		if out.Outliers.Method == MethodIQR {
			out.Outliers.Threshold = DefaultIQRMultiplier
		} else {
			out.Outliers.Threshold = DefaultZScoreThreshold
		}
	}
	if out.Missing.Policy == "" {
		out.Missing.Policy = PolicyFlag
	}
	if out.Missing.ThresholdPercent == 0 {
		out.Missing.ThresholdPercent = DefaultDropThresholdPct
	}
	return out
}

// Validate checks the rules for internal consistency
func (r Rules) Validate() error {
	targets := make(map[string]string, len(r.ColumnMapping))
	for _, from := range sortedKeys(r.ColumnMapping) {
		to := r.ColumnMapping[from]
		if from == "" || to == "" {
			return &RulesError{Field: "column_mapping", Message: "empty column name"}
		}
		if prev, dup := targets[to]; dup {
			return &RulesError{Field: "column_mapping", Message: fmt.Sprintf("columns %s and %s both map to %s", prev, from, to)}
		}
		targets[to] = from
	}
	for col, kind := range r.Types {
		if !kind.Valid() {
			return &RulesError{Field: "types", Message: fmt.Sprintf("column %s has unknown kind %q", col, kind)}
		}
	}
	for _, c := range r.Categories {
		if c.Column == "" {
			return &RulesError{Field: "categories", Message: "column is required"}
		}
		if len(c.Canonical) == 0 {
			continue
		}
		for raw, canon := range c.Mapping {
			if !slices.Contains(c.Canonical, canon) {
				return &RulesError{Field: "categories", Message: fmt.Sprintf("column %s maps %q to non-canonical %q", c.Column, raw, canon)}
			}
		}
	}
	switch r.Outliers.Method {
	case "", MethodZScore, MethodIQR:
	default:
		return &RulesError{Field: "outliers.method", Message: fmt.Sprintf("unknown method %q", r.Outliers.Method)}
	}
	if r.Outliers.Threshold < 0 {
		return &RulesError{Field: "outliers.threshold", Message: "must not be negative"}
	}
	switch r.Missing.Policy {
	case "", PolicyFlag, PolicyDropRows, PolicyDropColumns:
	default:
		return &RulesError{Field: "missing.policy", Message: fmt.Sprintf("unknown policy %q", r.Missing.Policy)}
	}
	if r.Missing.ThresholdPercent < 0 || r.Missing.ThresholdPercent > 100 {
		return &RulesError{Field: "missing.threshold_percent", Message: "must be within [0, 100]"}
	}
	return nil
}

// RawContract returns the pre-cleaning contract for a raw extract: every
// mapped source column must be present. Raw cells are untyped text.
func (r Rules) RawContract(table string) validation.Contract {
	c := validation.Contract{Name: table + "_raw", MaxOutOfRangeFraction: 1}
	for _, from := range sortedKeys(r.ColumnMapping) {
		c.Columns = append(c.Columns, validation.ColumnContract{
			Name:     from,
			Kind:     tabular.KindString,
			Nullable: true,
		})
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
