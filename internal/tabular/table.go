// Package tabular provides the in-memory table model shared by every pipeline stage.
//
// A Table is an immutable value: every transformation returns a new Table and
// leaves its receiver untouched. Cells are nil (null), string, int64, float64 or bool.
package tabular

import (
	"fmt"
	"slices"
)

// Kind is the declared type of a column.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
)

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool:
		return true
	}
	return false
}

// Column describes a named, typed column.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Row is a single record; cells are positionally aligned with the table columns.
type Row []any

// Table is a named, column-typed collection of rows.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	rows    []Row
}

// New creates an empty table with the given columns. Column names must be unique.
func New(name string, columns []Column) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("table %s: column %d has an empty name", name, i)
		}
		if !c.Kind.Valid() {
			return nil, fmt.Errorf("table %s: column %s has unknown kind %q", name, c.Name, c.Kind)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		index[c.Name] = i
	}
	return &Table{
		name:    name,
		columns: slices.Clone(columns),
		index:   index,
	}, nil
}

// MustNew is New for statically known column sets; it panics on error.
func MustNew(name string, columns []Column) *Table {
	t, err := New(name, columns)
	if err != nil {
		panic(err)
	}
	return t
}

// Append returns a new table with the rows appended. Every cell must match its column kind.
func (t *Table) Append(rows ...Row) (*Table, error) {
	out := t.shallow()
	out.rows = make([]Row, len(t.rows), len(t.rows)+len(rows))
	copy(out.rows, t.rows)
	for i, r := range rows {
		if len(r) != len(t.columns) {
			return nil, fmt.Errorf("table %s: row %d has %d cells, want %d", t.name, i, len(r), len(t.columns))
		}
		for j, v := range r {
			if !CellMatches(t.columns[j].Kind, v) {
				return nil, fmt.Errorf("table %s: row %d column %s: %T does not match kind %s",
					t.name, i, t.columns[j].Name, v, t.columns[j].Kind)
			}
		}
		out.rows = append(out.rows, slices.Clone(r))
	}
	return out, nil
}

// MustAppend is Append for test fixtures and literals; it panics on error.
func (t *Table) MustAppend(rows ...Row) *Table {
	out, err := t.Append(rows...)
	if err != nil {
		panic(err)
	}
	return out
}

// CellMatches reports whether v may be stored in a column of kind k.
func CellMatches(k Kind, v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case string:
		return k == KindString
	case int64:
		return k == KindInt
	case float64:
		return k == KindFloat
	case bool:
		return k == KindBool
	}
	return false
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// WithName returns a copy of the table under a different name.
func (t *Table) WithName(name string) *Table {
	out := t.shallow()
	out.name = name
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns a copy of the column definitions.
func (t *Table) Columns() []Column { return slices.Clone(t.columns) }

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Kind returns the declared kind of a column.
func (t *Table) Kind(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return "", false
	}
	return t.columns[i].Kind, true
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row { return slices.Clone(t.rows[i]) }

// Value returns the cell at row i in the named column; missing columns read as null.
func (t *Table) Value(i int, column string) any {
	j, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.rows[i][j]
}

// ColumnValues returns all cells of a column in row order.
func (t *Table) ColumnValues(column string) []any {
	j, ok := t.index[column]
	if !ok {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// NullCount returns the number of null cells in a column.
func (t *Table) NullCount(column string) int {
	j, ok := t.index[column]
	if !ok {
		return 0
	}
	n := 0
	for _, r := range t.rows {
		if r[j] == nil {
			n++
		}
	}
	return n
}

// TotalNulls returns the number of null cells across the table.
func (t *Table) TotalNulls() int {
	n := 0
	for _, r := range t.rows {
		for _, v := range r {
			if v == nil {
				n++
			}
		}
	}
	return n
}

func (t *Table) shallow() *Table {
	return &Table{
		name:    t.name,
		columns: t.columns,
		index:   t.index,
		rows:    t.rows,
	}
}
