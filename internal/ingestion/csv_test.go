package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVFrom_PreservesHeaderCasing(t *testing.T) {
	input := "Year,Sector,Number of Doctors\n2009,Public Sector,1000\n2010,public,\n"

	tbl, err := ReadCSVFrom("doctors", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "doctors", tbl.Name())
	assert.Equal(t, []string{"Year", "Sector", "Number of Doctors"}, tbl.ColumnNames())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "2009", tbl.Value(0, "Year"))
	assert.Nil(t, tbl.Value(1, "Number of Doctors"))

	kind, ok := tbl.Kind("Year")
	require.True(t, ok)
	assert.Equal(t, tabular.KindString, kind)
}

func TestReadCSVFrom_PadsShortRows(t *testing.T) {
	tbl, err := ReadCSVFrom("t", strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "2", tbl.Value(0, "b"))
	assert.Nil(t, tbl.Value(0, "c"))
}

func TestReadCSVFrom_RejectsLongRows(t *testing.T) {
	_, err := ReadCSVFrom("t", strings.NewReader("a,b\n1,2,3\n"))
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadCSVFrom_LongRowAfterMultilineField(t *testing.T) {
	input := "a,b\n\"first\nsecond\",2\n1,2,3\n"

	_, err := ReadCSVFrom("t", strings.NewReader(input))

	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, err.Error(), "t line 4 has 3 fields")
}

func TestFromRecords_RejectsLongRecords(t *testing.T) {
	_, err := FromRecords("t", []string{"a"}, [][]string{{"1"}, {"1", "2"}})

	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, err.Error(), "t record 2 has 2 fields")
}

func TestReadCSVFrom_EmptyFile(t *testing.T) {
	_, err := ReadCSVFrom("t", strings.NewReader(""))
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
}

func TestReadCSVFrom_DuplicateHeader(t *testing.T) {
	_, err := ReadCSVFrom("t", strings.NewReader("a,a\n1,2\n"))
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Contains(t, err.Error(), "duplicate column a")
}

func TestReadCSVFrom_StripsBOM(t *testing.T) {
	tbl, err := ReadCSVFrom("t", strings.NewReader("\ufeffyear,count\n2009,1\n"))
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("year"))
}

func TestReadCSV_NamesTableAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workforce_nurses.csv")
	require.NoError(t, os.WriteFile(path, []byte("year,count\n2009,5\n"), 0644))

	tbl, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "workforce_nurses", tbl.Name())
	assert.Equal(t, 1, tbl.Len())
}

func TestReadSource_MissingFile(t *testing.T) {
	_, err := ReadSource(Source{Name: "x", Path: filepath.Join(t.TempDir(), "missing.csv")})
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
