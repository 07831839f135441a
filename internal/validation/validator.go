package validation

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// ColumnStats records what was observed for one contract column
type ColumnStats struct {
	Name         string       `json:"name"`
	ExpectedKind tabular.Kind `json:"expected_kind"`
	ActualKind   tabular.Kind `json:"actual_kind"`
	Nulls        int          `json:"nulls"`
	OutOfRange   int          `json:"out_of_range"`
	TypeMismatch bool         `json:"type_mismatch"`
}

// Report is the outcome of a complete contract check
type Report struct {
	Table        string        `json:"table"`
	Contract     string        `json:"contract"`
	Rows         int           `json:"rows"`
	Passed       bool          `json:"passed"`
	Columns      []ColumnStats `json:"columns"`
	Duplicates   int           `json:"duplicates"`
	DuplicateKey []string      `json:"duplicate_key,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Failures     []string      `json:"failures,omitempty"`
}

// Err returns a ValidationFailedError when the report did not pass
func (r *Report) Err() error {
	if r.Passed {
		return nil
	}
	return &ValidationFailedError{Table: r.Table, Contract: r.Contract, Failures: slices.Clone(r.Failures)}
}

// Validator checks tables against contracts. The zero value is not usable; call NewValidator.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a validator that logs to logger (nil means no logging)
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.Named("validation")}
}

// Validate checks table against contract. Structural violations (missing
// columns, critical type mismatches, values outside an enumeration) abort
// with a nil report; everything else is recorded in the report.
func (v *Validator) Validate(table *tabular.Table, contract Contract) (*Report, error) {
	if table == nil {
		return nil, &Error{Message: "table is nil"}
	}
	if err := contract.check(); err != nil {
		return nil, err
	}
	log := v.logger.With(zap.String("table", table.Name()), zap.String("contract", contract.Name))
	log.Info("validating table", zap.Int("rows", table.Len()), zap.Int("columns", len(contract.Columns)))

	// 1. Presence of contract and key columns
	if err := checkPresence(table, contract); err != nil {
		log.Error("missing columns", zap.Error(err))
		return nil, err
	}

	report := &Report{
		Table:        table.Name(),
		Contract:     contract.Name,
		Rows:         table.Len(),
		DuplicateKey: slices.Clone(contract.DuplicateKey),
	}

	// 2. Declared kinds
	for _, col := range contract.Columns {
		actual, _ := table.Kind(col.Name)
		stats := ColumnStats{
			Name:         col.Name,
			ExpectedKind: col.Kind,
			ActualKind:   actual,
			Nulls:        table.NullCount(col.Name),
		}
		if actual != col.Kind {
			if col.Critical {
				err := &TypeMismatchError{Table: table.Name(), Column: col.Name, Expected: col.Kind, Actual: actual}
				log.Error("critical type mismatch", zap.Error(err))
				return nil, err
			}
			stats.TypeMismatch = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("column %s: expected %s, got %s", col.Name, col.Kind, actual))
		}
		report.Columns = append(report.Columns, stats)
	}

	// 3. Enumerations
	for _, col := range contract.Columns {
		if len(col.Enum) == 0 {
			continue
		}
		if bad := offending(table, col); len(bad) > 0 {
			err := &InvalidCategoryError{Table: table.Name(), Column: col.Name, Values: bad, Allowed: slices.Clone(col.Enum)}
			log.Error("invalid categories", zap.Error(err))
			return nil, err
		}
	}

	// 4. Ranges, nulls and duplicates are counted
	for i, col := range contract.Columns {
		stats := &report.Columns[i]
		if stats.Nulls > 0 && !col.Nullable {
			report.Failures = append(report.Failures,
				fmt.Sprintf("column %s: %d null values not allowed", col.Name, stats.Nulls))
		}
		if col.Min == nil && col.Max == nil {
			continue
		}
		stats.OutOfRange = countOutOfRange(table, col)
		if stats.OutOfRange > 0 && table.Len() > 0 {
			frac := float64(stats.OutOfRange) / float64(table.Len())
			msg := fmt.Sprintf("column %s: %d values out of range (%.2f%% of rows)", col.Name, stats.OutOfRange, frac*100)
			if frac > contract.MaxOutOfRangeFraction {
				report.Failures = append(report.Failures, msg)
			} else {
				report.Warnings = append(report.Warnings, msg)
			}
		}
	}

	if len(contract.DuplicateKey) > 0 {
		report.Duplicates = countDuplicates(table, contract.DuplicateKey)
		if report.Duplicates > 0 {
			msg := fmt.Sprintf("%d duplicate rows on %v", report.Duplicates, contract.DuplicateKey)
			if contract.FailOnDuplicates {
				report.Failures = append(report.Failures, msg)
			} else {
				report.Warnings = append(report.Warnings, msg)
			}
		}
	}

	report.Passed = len(report.Failures) == 0
	log.Info("validation complete",
		zap.Bool("passed", report.Passed),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("failures", len(report.Failures)),
		zap.Int("duplicates", report.Duplicates))
	return report, nil
}

func checkPresence(table *tabular.Table, contract Contract) error {
	missing := map[string]bool{}
	for _, col := range contract.Columns {
		if !table.HasColumn(col.Name) {
			missing[col.Name] = true
		}
	}
	for _, k := range contract.DuplicateKey {
		if !table.HasColumn(k) {
			missing[k] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	slices.Sort(names)
	return &MissingColumnError{Table: table.Name(), Columns: names}
}

func offending(table *tabular.Table, col ColumnContract) []string {
	seen := map[string]bool{}
	var bad []string
	for _, v := range table.ColumnValues(col.Name) {
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if seen[s] {
			continue
		}
		seen[s] = true
		if !slices.Contains(col.Enum, s) {
			bad = append(bad, s)
		}
	}
	slices.Sort(bad)
	return bad
}

func countOutOfRange(table *tabular.Table, col ColumnContract) int {
	n := 0
	for _, v := range table.ColumnValues(col.Name) {
		var f float64
		switch x := v.(type) {
		case int64:
			f = float64(x)
		case float64:
			f = x
		default:
			continue
		}
		if (col.Min != nil && f < *col.Min) || (col.Max != nil && f > *col.Max) {
			n++
		}
	}
	return n
}

func countDuplicates(table *tabular.Table, key []string) int {
	seen := make(map[string]bool, table.Len())
	dups := 0
	for i := 0; i < table.Len(); i++ {
		k := table.Key(i, key)
		if seen[k] {
			dups++
			continue
		}
		seen[k] = true
	}
	return dups
}
