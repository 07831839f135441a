package unify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

func tbl(name string, cols []tabular.Column, rows ...tabular.Row) *tabular.Table {
	return tabular.MustNew(name, cols).MustAppend(rows...)
}

var base = []tabular.Column{
	{Name: "year", Kind: tabular.KindInt},
	{Name: "count", Kind: tabular.KindInt},
}

func TestUnify_RowCountAndOrder(t *testing.T) {
	doctors := tbl("workforce_doctors", base, tabular.Row{int64(2009), int64(1)}, tabular.Row{int64(2010), int64(2)})
	nurses := tbl("workforce_nurses", base, tabular.Row{int64(2009), int64(3)})
	pharm := tbl("workforce_pharmacists", base, tabular.Row{int64(2009), int64(4)}, tabular.Row{int64(2010), int64(5)}, tabular.Row{int64(2011), int64(6)})

	res, err := Unify([]*tabular.Table{doctors, nurses, pharm}, "source_table", Options{Name: "workforce"})
	require.NoError(t, err)

	out := res.Table
	assert.Equal(t, doctors.Len()+nurses.Len()+pharm.Len(), out.Len())
	assert.Equal(t, "workforce", out.Name())
	assert.Equal(t, []string{"year", "count", "source_table"}, out.ColumnNames())
	var counts []any
	for i := 0; i < out.Len(); i++ {
		counts = append(counts, out.Value(i, "count"))
	}
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5), int64(6)}, counts)
	assert.Equal(t, "workforce_nurses", out.Value(2, "source_table"))
	assert.Equal(t, "workforce_pharmacists", out.Value(5, "source_table"))

	assert.Equal(t, 6, res.Log.RowsOut)
	require.Len(t, res.Log.Inputs, 3)
	assert.Equal(t, 3, res.Log.Inputs[2].Rows)
}

func TestUnify_FillsOptionalColumns(t *testing.T) {
	doctors := tbl("workforce_doctors",
		append(base, tabular.Column{Name: "specialist_category", Kind: tabular.KindString}),
		tabular.Row{int64(2009), int64(1), "Surgery"})
	nurses := tbl("workforce_nurses",
		append(base, tabular.Column{Name: "nurse_type", Kind: tabular.KindString}),
		tabular.Row{int64(2009), int64(2), "Registered"})

	res, err := Unify([]*tabular.Table{doctors, nurses}, "source_table",
		Options{Optional: []string{"specialist_category", "nurse_type"}})
	require.NoError(t, err)

	out := res.Table
	assert.Equal(t, []string{"year", "count", "specialist_category", "nurse_type", "source_table"}, out.ColumnNames())
	assert.Nil(t, out.Value(0, "nurse_type"))
	assert.Nil(t, out.Value(1, "specialist_category"))
	assert.Equal(t, "Registered", out.Value(1, "nurse_type"))
	assert.Equal(t, []string{"nurse_type"}, res.Log.Inputs[0].Filled)
	assert.Equal(t, []string{"specialist_category"}, res.Log.Inputs[1].Filled)
}

func TestUnify_ReplacesExistingDiscriminator(t *testing.T) {
	cols := append(base, tabular.Column{Name: "source_table", Kind: tabular.KindString})
	a := tbl("a", cols, tabular.Row{int64(2009), int64(1), "stale"})
	b := tbl("b", base, tabular.Row{int64(2009), int64(2)})

	res, err := Unify([]*tabular.Table{a, b}, "source_table", Options{})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Table.Value(0, "source_table"))
	assert.Equal(t, "b", res.Table.Value(1, "source_table"))
}

func TestUnify_SchemaMismatch(t *testing.T) {
	a := tbl("a", base)
	b := tbl("b", []tabular.Column{
		{Name: "year", Kind: tabular.KindString},
		{Name: "headcount", Kind: tabular.KindInt},
	})

	_, err := Unify([]*tabular.Table{a, b}, "source_table", Options{})

	var serr *SchemaMismatchError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "b", serr.Table)
	assert.Equal(t, []string{"count"}, serr.Missing)
	assert.Equal(t, []string{"headcount"}, serr.Extra)
	require.Len(t, serr.KindConflicts, 1)
	assert.Equal(t, "year", serr.KindConflicts[0].Column)
	assert.Contains(t, err.Error(), "table b")
}

func TestUnify_OptionalKindConflict(t *testing.T) {
	a := tbl("a", append(base, tabular.Column{Name: "nurse_type", Kind: tabular.KindString}))
	b := tbl("b", append(base, tabular.Column{Name: "nurse_type", Kind: tabular.KindInt}))

	_, err := Unify([]*tabular.Table{a, b}, "source_table", Options{Optional: []string{"nurse_type"}})
	var serr *SchemaMismatchError
	require.ErrorAs(t, err, &serr)
}

func TestUnify_RejectsBadInput(t *testing.T) {
	_, err := Unify(nil, "source_table", Options{})
	require.Error(t, err)

	a := tbl("a", base)
	_, err = Unify([]*tabular.Table{a, a}, "source_table", Options{})
	require.Error(t, err)

	_, err = Unify([]*tabular.Table{a}, "", Options{})
	require.Error(t, err)
}

func TestUnify_DoesNotMutateInputs(t *testing.T) {
	a := tbl("a", base, tabular.Row{int64(2009), int64(1)})
	before := a.Fingerprint()
	_, err := Unify([]*tabular.Table{a}, "source_table", Options{})
	require.NoError(t, err)
	assert.Equal(t, before, a.Fingerprint())
}

func TestRowCountError(t *testing.T) {
	err := &RowCountError{Expected: 5, Actual: 4}
	assert.Contains(t, err.Error(), "expected 5 rows, got 4")
}
