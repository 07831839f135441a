package cleaning

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/types"
)

func rawDoctors(rows ...tabular.Row) *tabular.Table {
	return tabular.MustNew("workforce_doctors", []tabular.Column{
		{Name: "Year", Kind: tabular.KindString},
		{Name: "Sector", Kind: tabular.KindString},
		{Name: "Number of Doctors", Kind: tabular.KindString},
	}).MustAppend(rows...)
}

func doctorRules() Rules {
	return Rules{
		ColumnMapping: map[string]string{
			"Year":              types.ColYear,
			"Sector":            types.ColSector,
			"Number of Doctors": types.ColCount,
		},
		Constants: map[string]string{
			types.ColProfession:  string(types.ProfessionDoctor),
			types.ColSourceTable: "workforce_doctors",
		},
		Categories: []CategoryRule{{
			Column: types.ColSector,
			Mapping: map[string]string{
				"Public Sector":          "Public",
				"Private Sector":         "Private",
				"Not-for-Profit Sector":  "Not-for-Profit",
				"Not in Active Practice": "Inactive",
			},
			Canonical: types.SectorNames(),
		}},
		Types: map[string]tabular.Kind{
			types.ColYear:  tabular.KindInt,
			types.ColCount: tabular.KindInt,
		},
		DuplicateKey: []string{types.ColYear, types.ColSector, types.ColProfession},
		Outliers:     OutlierRules{Columns: []string{types.ColCount}},
	}
}

func clean(t *testing.T, raw *tabular.Table, rules Rules) *Result {
	t.Helper()
	res, err := NewCleaner(zap.NewNop()).Clean(raw, rules)
	require.NoError(t, err)
	return res
}

func TestClean_StandardizesAndCoerces(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "Public Sector", "1000"},
		tabular.Row{"2010", "  public   SECTOR ", "1050.0"},
		tabular.Row{"2010", "Private", "abc"},
		tabular.Row{"2011", "Not in Active Practice", "n/a"},
	)

	res := clean(t, raw, doctorRules())
	out := res.Table

	assert.Equal(t, []string{
		types.ColYear, types.ColSector, types.ColCount, types.ColProfession, types.ColSourceTable,
		types.ColHasMissingValues, types.ColCount + OutlierSuffix, types.ColOutlierFlag,
	}, out.ColumnNames())

	kind, _ := out.Kind(types.ColYear)
	assert.Equal(t, tabular.KindInt, kind)
	assert.Equal(t, int64(2009), out.Value(0, types.ColYear))
	assert.Equal(t, "Public", out.Value(1, types.ColSector))
	assert.Equal(t, int64(1050), out.Value(1, types.ColCount))
	assert.Nil(t, out.Value(2, types.ColCount))
	assert.Nil(t, out.Value(3, types.ColCount))
	assert.Equal(t, "Inactive", out.Value(3, types.ColSector))
	assert.Equal(t, "Doctor", out.Value(0, types.ColProfession))

	assert.Equal(t, map[string]int{types.ColCount: 1}, res.Log.ConversionFailures)
	assert.Equal(t, 2, res.Log.Missing.RowsFlagged)
	assert.Equal(t, true, out.Value(2, types.ColHasMissingValues))
	assert.Equal(t, false, out.Value(0, types.ColHasMissingValues))
	assert.Len(t, res.Log.Steps, 7)
	assert.Equal(t, StepRename, res.Log.Steps[0].Step)
	assert.Equal(t, StepOutliers, res.Log.Steps[6].Step)
}

func TestClean_DoesNotMutateInput(t *testing.T) {
	raw := rawDoctors(tabular.Row{"2009", "Public Sector", "1000"})
	before := raw.Fingerprint()

	clean(t, raw, doctorRules())

	assert.Equal(t, before, raw.Fingerprint())
	assert.True(t, raw.HasColumn("Number of Doctors"))
}

func TestClean_Idempotent(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "Public Sector", "1000"},
		tabular.Row{"2009", "Public Sector", "1000"},
		tabular.Row{"2009", "Public Sector", "990"},
		tabular.Row{"2010", "Govt", "x"},
		tabular.Row{"2011", "Private Sector", "-"},
		tabular.Row{"2012", "Private Sector", "120000"},
	)
	for _, policy := range []string{PolicyFlag, PolicyDropRows, PolicyDropColumns} {
		t.Run(policy, func(t *testing.T) {
			rules := doctorRules()
			rules.Missing.Policy = policy

			once := clean(t, raw, rules)
			twice := clean(t, once.Table, rules)

			if diff := cmp.Diff(once.Table.Records(), twice.Table.Records()); diff != "" {
				t.Fatalf("second clean changed the table (-once +twice):\n%s", diff)
			}
			assert.Equal(t, once.Table.ColumnNames(), twice.Table.ColumnNames())
			assert.Equal(t, once.Table.Fingerprint(), twice.Table.Fingerprint())
			assert.Empty(t, twice.Log.Renamed)
			assert.Zero(t, twice.Log.DuplicatesRemoved)
		})
	}
}

func TestClean_Idempotent_DroppedMappedColumns(t *testing.T) {
	nurses := tabular.MustNew("workforce_nurses", []tabular.Column{
		{Name: "Year", Kind: tabular.KindString},
		{Name: "Nurse Type", Kind: tabular.KindString},
		{Name: "Count", Kind: tabular.KindString},
	}).MustAppend(
		tabular.Row{"2009", "Registered", "10"},
		tabular.Row{"2009", nil, "10"},
		tabular.Row{"2010", nil, "12"},
	)
	nurseRules := Rules{
		ColumnMapping: map[string]string{"Year": types.ColYear, "Nurse Type": types.ColNurseType, "Count": types.ColCount},
		Types:         map[string]tabular.Kind{types.ColYear: tabular.KindInt, types.ColCount: tabular.KindInt},
		DuplicateKey:  []string{types.ColYear, types.ColNurseType},
		Missing:       MissingRules{Policy: PolicyDropColumns},
	}

	doctorsRules := doctorRules()
	doctorsRules.Missing.Policy = PolicyDropColumns

	tests := []struct {
		name        string
		raw         *tabular.Table
		rules       Rules
		dropped     string
		wantRows    int
		wantRemoved int
	}{
		{
			name:        "renamed column",
			raw:         nurses,
			rules:       nurseRules,
			dropped:     types.ColNurseType,
			wantRows:    2,
			wantRemoved: 1,
		},
		{
			name: "category column",
			raw: rawDoctors(
				tabular.Row{"2009", nil, "1000"},
				tabular.Row{"2010", nil, "1100"},
				tabular.Row{"2011", "Public Sector", "1200"},
			),
			rules:    doctorsRules,
			dropped:  types.ColSector,
			wantRows: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := clean(t, tt.raw, tt.rules)
			assert.False(t, once.Table.HasColumn(tt.dropped))
			assert.Contains(t, once.Log.Missing.ColumnsDropped, tt.dropped)
			assert.Equal(t, tt.wantRows, once.Table.Len())
			assert.Equal(t, tt.wantRemoved, once.Log.DuplicatesRemoved)

			twice, err := NewCleaner(zap.NewNop()).Clean(once.Table, tt.rules)
			require.NoError(t, err)
			if diff := cmp.Diff(once.Table.Records(), twice.Table.Records()); diff != "" {
				t.Fatalf("second clean changed the table (-once +twice):\n%s", diff)
			}
			assert.Equal(t, once.Table.ColumnNames(), twice.Table.ColumnNames())
			assert.Zero(t, twice.Log.DuplicatesRemoved)
			assert.Empty(t, twice.Log.Missing.ColumnsDropped)
		})
	}
}

func TestClean_DroppedColumnStillRequiredUnderFlagPolicy(t *testing.T) {
	raw := tabular.MustNew("t", []tabular.Column{{Name: "year", Kind: tabular.KindString}}).
		MustAppend(tabular.Row{"2009"})
	rules := Rules{
		ColumnMapping: map[string]string{"Sector": types.ColSector},
		Types:         map[string]tabular.Kind{types.ColYear: tabular.KindInt},
	}

	_, err := NewCleaner(nil).Clean(raw, rules)

	var mappingErr *ColumnMappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, StepRename, mappingErr.Step)
	assert.Equal(t, []string{"Sector"}, mappingErr.Columns)
}

func TestClean_CategoryClosureAndUnmapped(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "PUBLIC SECTOR", "1"},
		tabular.Row{"2009", "private sector", "1"},
		tabular.Row{"2009", "Not-for-profit  Sector", "1"},
		tabular.Row{"2009", "not in active practice", "1"},
		tabular.Row{"2010", "Public", "1"},
		tabular.Row{"2009", "Govt", "1"},
	)

	res := clean(t, raw, doctorRules())

	canonical := map[string]bool{}
	for _, s := range types.SectorNames() {
		canonical[s] = true
	}
	for i := 0; i < 5; i++ {
		v := res.Table.Value(i, types.ColSector).(string)
		assert.True(t, canonical[v], "row %d has non-canonical sector %q", i, v)
	}
	assert.Equal(t, "Govt", res.Table.Value(5, types.ColSector))

	require.Len(t, res.Log.Categories, 1)
	cat := res.Log.Categories[0]
	assert.Equal(t, []string{"Govt"}, cat.Unmapped)
	assert.Equal(t, 4, cat.Changed)
	assert.Equal(t, "Private", cat.Mapped["private sector"])
	assert.Equal(t, map[string][]string{types.ColSector: {"Govt"}}, res.Log.UnmappedValues())
}

func TestClean_MissingMappedColumn(t *testing.T) {
	raw := tabular.MustNew("workforce_doctors", []tabular.Column{{Name: "Year", Kind: tabular.KindString}})

	_, err := NewCleaner(nil).Clean(raw, doctorRules())

	var merr *ColumnMappingError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, StepRename, merr.Step)
	assert.Equal(t, []string{"Number of Doctors", "Sector"}, merr.Columns)
}

func TestClean_UnmappedColumnsPassThrough(t *testing.T) {
	raw := tabular.MustNew("workforce_doctors", []tabular.Column{
		{Name: "Year", Kind: tabular.KindString},
		{Name: "Sector", Kind: tabular.KindString},
		{Name: "Number of Doctors", Kind: tabular.KindString},
		{Name: "Remarks", Kind: tabular.KindString},
	}).MustAppend(tabular.Row{"2009", "Public", "3", "ok"})

	res := clean(t, raw, doctorRules())
	assert.Equal(t, "ok", res.Table.Value(0, "Remarks"))
}

func TestClean_DedupKeepsFirstAndSurfacesNearDuplicates(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "Public", "1000"},
		tabular.Row{"2009", "Public Sector", "1000"},
		tabular.Row{"2009", "Public", "1001"},
		tabular.Row{"2010", "Public", "5"},
	)

	res := clean(t, raw, doctorRules())

	assert.Equal(t, 3, res.Table.Len())
	assert.Equal(t, 1, res.Log.DuplicatesRemoved)
	assert.Equal(t, int64(1000), res.Table.Value(0, types.ColCount))
	assert.Equal(t, int64(1001), res.Table.Value(1, types.ColCount))
	require.Len(t, res.Log.NearDuplicates, 1)
	assert.Equal(t, []int{0, 2}, res.Log.NearDuplicates[0].Rows)
	assert.Equal(t, int64(2009), res.Log.NearDuplicates[0].Key[types.ColYear])
}

func TestClean_DropRowsPolicy(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "Public", "1000"},
		tabular.Row{"2010", "Public", nil},
	)
	rules := doctorRules()
	rules.Missing.Policy = PolicyDropRows

	res := clean(t, raw, rules)
	assert.Equal(t, 1, res.Table.Len())
	assert.Equal(t, 1, res.Log.Missing.RowsDropped)
	assert.Equal(t, false, res.Table.Value(0, types.ColHasMissingValues))
}

func TestClean_DropColumnsPolicy(t *testing.T) {
	raw := tabular.MustNew("t", []tabular.Column{
		{Name: "year", Kind: tabular.KindString},
		{Name: "notes", Kind: tabular.KindString},
	}).MustAppend(
		tabular.Row{"2009", nil},
		tabular.Row{"2010", nil},
		tabular.Row{"2011", "x"},
	)
	rules := Rules{
		Types:   map[string]tabular.Kind{"year": tabular.KindInt},
		Missing: MissingRules{Policy: PolicyDropColumns, ThresholdPercent: 50},
	}

	res := clean(t, raw, rules)
	assert.False(t, res.Table.HasColumn("notes"))
	assert.Equal(t, []string{"notes"}, res.Log.Missing.ColumnsDropped)
	assert.True(t, res.Table.HasColumn(types.ColHasMissingValues))
}

func TestClean_ZScoreOutliers(t *testing.T) {
	var rows []tabular.Row
	for i := 0; i < 20; i++ {
		rows = append(rows, tabular.Row{strconv.Itoa(1990 + i), "Public", "10"})
	}
	rows = append(rows, tabular.Row{"2010", "Public", "1000"})

	res := clean(t, rawDoctors(rows...), doctorRules())

	assert.Equal(t, 1, res.Log.Outliers.RowsFlagged)
	assert.Equal(t, 1, res.Log.Outliers.ByColumn[types.ColCount])
	assert.Equal(t, true, res.Table.Value(20, types.ColOutlierFlag))
	assert.Equal(t, false, res.Table.Value(0, types.ColOutlierFlag))
	assert.Equal(t, 21, res.Table.Len())
}

func TestClean_IQROutliers(t *testing.T) {
	rules := doctorRules()
	rules.Outliers.Method = MethodIQR
	raw := rawDoctors(
		tabular.Row{"2009", "Public", "1"},
		tabular.Row{"2010", "Public", "2"},
		tabular.Row{"2011", "Public", "3"},
		tabular.Row{"2012", "Public", "4"},
		tabular.Row{"2013", "Public", "100"},
	)

	res := clean(t, raw, rules)
	assert.Equal(t, DefaultIQRMultiplier, res.Log.Outliers.Threshold)
	assert.Equal(t, true, res.Table.Value(4, types.ColCount+OutlierSuffix))
	assert.Equal(t, 1, res.Log.Outliers.RowsFlagged)
}

func TestClean_ZeroSpreadFlagsNothing(t *testing.T) {
	raw := rawDoctors(
		tabular.Row{"2009", "Public", "7"},
		tabular.Row{"2010", "Public", "7"},
		tabular.Row{"2011", "Public", "7"},
	)
	for _, method := range []string{MethodZScore, MethodIQR} {
		rules := doctorRules()
		rules.Outliers.Method = method
		res := clean(t, raw, rules)
		assert.Zero(t, res.Log.Outliers.RowsFlagged, method)
	}
}

func TestClean_SkipsNonNumericOutlierColumns(t *testing.T) {
	rules := doctorRules()
	rules.Outliers.Columns = []string{types.ColSector, "absent"}

	res := clean(t, rawDoctors(tabular.Row{"2009", "Public", "7"}), rules)
	assert.Equal(t, []string{types.ColSector, "absent"}, res.Log.Outliers.Skipped)
	assert.True(t, res.Table.HasColumn(types.ColOutlierFlag))
}

func TestClean_RejectsInvalidRules(t *testing.T) {
	rules := doctorRules()
	rules.Outliers.Method = "mad"
	_, err := NewCleaner(nil).Clean(rawDoctors(), rules)
	var rerr *RulesError
	require.ErrorAs(t, err, &rerr)
}

func TestRules_Validate(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		field string
	}{
		{"duplicate targets", Rules{ColumnMapping: map[string]string{"a": "x", "b": "x"}}, "column_mapping"},
		{"unknown kind", Rules{Types: map[string]tabular.Kind{"a": "decimal"}}, "types"},
		{"non canonical mapping", Rules{Categories: []CategoryRule{{
			Column: "sector", Mapping: map[string]string{"Govt": "Government"}, Canonical: types.SectorNames(),
		}}}, "categories"},
		{"bad policy", Rules{Missing: MissingRules{Policy: "impute"}}, "missing.policy"},
		{"bad threshold", Rules{Missing: MissingRules{ThresholdPercent: 120}}, "missing.threshold_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate()
			var rerr *RulesError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.field, rerr.Field)
		})
	}
	assert.NoError(t, doctorRules().Validate())
}

func TestRules_RawContract(t *testing.T) {
	c := doctorRules().RawContract("workforce_doctors")
	assert.Equal(t, "workforce_doctors_raw", c.Name)
	require.Len(t, c.Columns, 3)
	assert.Equal(t, "Number of Doctors", c.Columns[0].Name)
	assert.Equal(t, tabular.KindString, c.Columns[0].Kind)
}
