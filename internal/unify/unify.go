package unify

import (
	"fmt"
	"slices"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// Options configures a unification
type Options struct {
	// Name of the unified table; defaults to the discriminator column name.
	Name string
	// Optional columns may be absent from some tables and are null-filled there.
	Optional []string
}

// InputLog describes one contributing table
type InputLog struct {
	Table  string   `json:"table"`
	Rows   int      `json:"rows"`
	Filled []string `json:"filled,omitempty"`
}

// Log is the audit trail of a unification
type Log struct {
	Name          string     `json:"name"`
	Discriminator string     `json:"discriminator"`
	Inputs        []InputLog `json:"inputs"`
	RowsOut       int        `json:"rows_out"`
}

// Result is the unified table with its log
type Result struct {
	Table *tabular.Table
	Log   *Log
}

// Unify concatenates tables in order, tagging every row with the name of its
// source table in the discriminator column. The required schema is the first
// table's columns minus the optional ones and the discriminator.
func Unify(tables []*tabular.Table, discriminator string, opts Options) (*Result, error) {
	if len(tables) == 0 {
		return nil, &Error{Message: "no tables to unify"}
	}
	if discriminator == "" {
		return nil, &Error{Message: "discriminator column is required"}
	}
	name := opts.Name
	if name == "" {
		name = discriminator
	}

	seen := map[string]bool{}
	for i, t := range tables {
		if t == nil {
			return nil, &Error{Message: fmt.Sprintf("table %d is nil", i)}
		}
		if seen[t.Name()] {
			return nil, &Error{Message: fmt.Sprintf("table %s appears more than once", t.Name())}
		}
		seen[t.Name()] = true
	}

	optional := map[string]bool{discriminator: true}
	for _, o := range opts.Optional {
		optional[o] = true
	}

	ref := tables[0]
	var required []tabular.Column
	for _, c := range ref.Columns() {
		if !optional[c.Name] {
			required = append(required, c)
		}
	}

	// Kinds of optional columns come from the first table that carries them.
	optKinds := map[string]tabular.Kind{}
	for _, t := range tables {
		if err := checkSchema(t, ref.Name(), required, optional, optKinds); err != nil {
			return nil, err
		}
	}

	cols := outputColumns(ref, opts.Optional, optKinds, discriminator)
	out, err := tabular.New(name, cols)
	if err != nil {
		return nil, &Error{Message: "failed to build unified schema", Cause: err}
	}

	log := &Log{Name: name, Discriminator: discriminator}
	expected := 0
	var rows []tabular.Row
	for _, t := range tables {
		expected += t.Len()
		entry := InputLog{Table: t.Name(), Rows: t.Len()}
		for _, o := range opts.Optional {
			if !t.HasColumn(o) {
				entry.Filled = append(entry.Filled, o)
			}
		}
		log.Inputs = append(log.Inputs, entry)

		for i := 0; i < t.Len(); i++ {
			r := make(tabular.Row, len(cols))
			for j, c := range cols {
				if c.Name == discriminator {
					r[j] = t.Name()
					continue
				}
				r[j] = t.Value(i, c.Name)
			}
			rows = append(rows, r)
		}
	}

	out, err = out.Append(rows...)
	if err != nil {
		return nil, &Error{Message: "failed to append unified rows", Cause: err}
	}
	if out.Len() != expected {
		return nil, &RowCountError{Expected: expected, Actual: out.Len()}
	}
	log.RowsOut = out.Len()
	return &Result{Table: out, Log: log}, nil
}

func checkSchema(t *tabular.Table, reference string, required []tabular.Column, optional map[string]bool, optKinds map[string]tabular.Kind) error {
	mismatch := &SchemaMismatchError{Table: t.Name(), Reference: reference}
	want := map[string]bool{}
	for _, c := range required {
		want[c.Name] = true
		kind, ok := t.Kind(c.Name)
		switch {
		case !ok:
			mismatch.Missing = append(mismatch.Missing, c.Name)
		case kind != c.Kind:
			mismatch.KindConflicts = append(mismatch.KindConflicts, KindConflict{Column: c.Name, Expected: string(c.Kind), Actual: string(kind)})
		}
	}
	for _, c := range t.Columns() {
		if want[c.Name] {
			continue
		}
		if !optional[c.Name] {
			mismatch.Extra = append(mismatch.Extra, c.Name)
			continue
		}
		if prev, ok := optKinds[c.Name]; ok && prev != c.Kind {
			mismatch.KindConflicts = append(mismatch.KindConflicts, KindConflict{Column: c.Name, Expected: string(prev), Actual: string(c.Kind)})
			continue
		}
		optKinds[c.Name] = c.Kind
	}
	if len(mismatch.Missing)+len(mismatch.Extra)+len(mismatch.KindConflicts) == 0 {
		return nil
	}
	slices.Sort(mismatch.Missing)
	slices.Sort(mismatch.Extra)
	return mismatch
}

// outputColumns keeps the reference table's order, then appends optional
// columns it lacks, then the discriminator if it was not already present.
func outputColumns(ref *tabular.Table, optional []string, optKinds map[string]tabular.Kind, discriminator string) []tabular.Column {
	cols := ref.Columns()
	for i, c := range cols {
		if c.Name == discriminator {
			cols[i].Kind = tabular.KindString
		}
	}
	for _, o := range optional {
		if o == discriminator || ref.HasColumn(o) {
			continue
		}
		kind, ok := optKinds[o]
		if !ok {
			kind = tabular.KindString
		}
		cols = append(cols, tabular.Column{Name: o, Kind: kind})
	}
	if !ref.HasColumn(discriminator) {
		cols = append(cols, tabular.Column{Name: discriminator, Kind: tabular.KindString})
	}
	return cols
}
