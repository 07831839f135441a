package tabular

import (
	"fmt"
	"slices"
)

// Rename returns a table with columns renamed per mapping (old name -> new name).
// Names absent from the table are ignored; callers validate presence first.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	cols := slices.Clone(t.columns)
	for i, c := range cols {
		if to, ok := mapping[c.Name]; ok {
			cols[i].Name = to
		}
	}
	out, err := New(t.name, cols)
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	out.rows = t.rows
	return out, nil
}

// SetColumn returns a table where the named column holds values. An existing
// column is replaced in place (keeping its position); a new column is appended.
func (t *Table) SetColumn(col Column, values []any) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("table %s: column %s has %d values, want %d", t.name, col.Name, len(values), len(t.rows))
	}
	for i, v := range values {
		if !CellMatches(col.Kind, v) {
			return nil, fmt.Errorf("table %s: row %d column %s: %T does not match kind %s", t.name, i, col.Name, v, col.Kind)
		}
	}

	cols := slices.Clone(t.columns)
	j, exists := t.index[col.Name]
	if exists {
		cols[j] = col
	} else {
		cols = append(cols, col)
		j = len(cols) - 1
	}
	out, err := New(t.name, cols)
	if err != nil {
		return nil, err
	}

	out.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := make(Row, len(cols))
		copy(nr, r)
		nr[j] = values[i]
		out.rows[i] = nr
	}
	return out, nil
}

// Constant returns a column of n identical values.
func Constant(n int, v any) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// MapColumn returns a table with fn applied to every cell of a column, which is
// re-declared with the given kind.
func (t *Table) MapColumn(column string, kind Kind, fn func(v any) any) (*Table, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("table %s: column %s not found", t.name, column)
	}
	src := t.ColumnValues(column)
	values := make([]any, len(src))
	for i, v := range src {
		values[i] = fn(v)
	}
	return t.SetColumn(Column{Name: column, Kind: kind}, values)
}

// DropColumns returns a table without the named columns. Unknown names are ignored.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[int]bool, len(names))
	for _, n := range names {
		if j, ok := t.index[n]; ok {
			drop[j] = true
		}
	}
	if len(drop) == 0 {
		return t
	}
	var cols []Column
	for j, c := range t.columns {
		if !drop[j] {
			cols = append(cols, c)
		}
	}
	out := MustNew(t.name, cols)
	out.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := make(Row, 0, len(cols))
		for j, v := range r {
			if !drop[j] {
				nr = append(nr, v)
			}
		}
		out.rows[i] = nr
	}
	return out
}

// Filter returns a table holding the rows for which keep returns true, in order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.shallow()
	out.rows = nil
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Equal reports whether two tables have the same name, columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.name != o.name || !slices.Equal(t.columns, o.columns) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.rows {
		if !slices.Equal(t.rows[i], o.rows[i]) {
			return false
		}
	}
	return true
}

// Records returns the rows as column-name keyed maps, in row order.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i, r := range t.rows {
		m := make(map[string]any, len(t.columns))
		for j, c := range t.columns {
			m[c.Name] = r[j]
		}
		out[i] = m
	}
	return out
}
