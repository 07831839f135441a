package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/types"
)

func i64(v int64) *int64 { return &v }

func wf(year int, sector types.Sector, prof types.Profession, count int64) types.WorkforceRecord {
	return types.WorkforceRecord{Year: year, Sector: sector, Profession: prof, Count: i64(count), SourceTable: "t"}
}

func beds(year int, sector types.Sector, n int64) types.CapacityRecord {
	return types.CapacityRecord{Year: year, Sector: sector, InstitutionType: "Hospital", NumBeds: i64(n), NumFacilities: i64(1)}
}

func engine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(benchmarks.Default(), opts, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestComputeMetrics_EndToEndScenario(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 1000),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 1050),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 500),
		beds(2010, types.SectorPublic, 520),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, YearRange{Start: 2009, End: 2010}, res.Overlap)

	first, second := res.Records[0], res.Records[1]
	assert.Equal(t, 2009, first.Year)
	assert.Equal(t, 2.0, first.Ratio)
	assert.Nil(t, first.PriorYearRatio)
	assert.Nil(t, first.WorkforceGrowthRate)
	assert.Nil(t, first.CapacityGrowthRate)
	assert.Nil(t, first.MismatchIndex)
	assert.False(t, first.MismatchFlag)
	assert.True(t, first.WithinBenchmark)

	assert.InDelta(t, 2.019, second.Ratio, 0.001)
	require.NotNil(t, second.PriorYearRatio)
	assert.Equal(t, 2.0, *second.PriorYearRatio)
	require.NotNil(t, second.WorkforceGrowthRate)
	assert.InDelta(t, 5.0, *second.WorkforceGrowthRate, 1e-9)
	require.NotNil(t, second.CapacityGrowthRate)
	assert.InDelta(t, 4.0, *second.CapacityGrowthRate, 1e-9)
	require.NotNil(t, second.MismatchIndex)
	assert.InDelta(t, 1.0, *second.MismatchIndex, 1e-9)
	assert.Equal(t, int64(1050), second.TotalWorkforce)
	assert.Equal(t, int64(520), second.TotalCapacity)
}

func TestComputeMetrics_MismatchThreshold(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPrivate, types.ProfessionNurse, 1000),
		wf(2010, types.SectorPrivate, types.ProfessionNurse, 1050),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPrivate, 500),
		beds(2010, types.SectorPrivate, 510),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	rec := res.Records[1]
	require.NotNil(t, rec.MismatchIndex)
	assert.InDelta(t, 3.0, *rec.MismatchIndex, 1e-9)
	assert.True(t, rec.MismatchFlag)
}

func TestComputeMetrics_RatioGuard(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 110),
		wf(2011, types.SectorPublic, types.ProfessionDoctor, 120),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 50),
		beds(2010, types.SectorPublic, 0),
		{Year: 2011, Sector: types.SectorPublic, InstitutionType: "Hospital"},
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 2009, res.Records[0].Year)
	require.Len(t, res.Guards, 2)
	require.NotNil(t, res.Guards[0].Denominator)
	assert.Zero(t, *res.Guards[0].Denominator)
	assert.Nil(t, res.Guards[1].Denominator)
	assert.Contains(t, res.Guards[1].Error(), "missing")
	assert.Equal(t, 1, res.NullsSkipped["capacity"])
	for _, r := range res.Records {
		assert.False(t, r.Ratio != r.Ratio, "ratio must not be NaN")
	}
}

func TestComputeMetrics_ExcludesOneSidedAndOutOfWindowYears(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2008, types.SectorPublic, types.ProfessionDoctor, 90),
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 110),
		wf(2010, types.SectorPrivate, types.ProfessionDoctor, 10),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 50),
		beds(2010, types.SectorPublic, 55),
		beds(2011, types.SectorPublic, 60),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)

	assert.Equal(t, YearRange{Start: 2009, End: 2010}, res.Overlap)
	require.Len(t, res.Records, 2)
	assert.Contains(t, res.Excluded, Exclusion{2008, types.SectorPublic, ReasonOutsideWindow})
	assert.Contains(t, res.Excluded, Exclusion{2011, types.SectorPublic, ReasonOutsideWindow})
	assert.Contains(t, res.Excluded, Exclusion{2010, types.SectorPrivate, ReasonNoCapacity})
	assert.Nil(t, res.Records[0].WorkforceGrowthRate, "first year of the window has no growth")
}

func TestComputeMetrics_MissingPredecessorGivesNullGrowth(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2011, types.SectorPublic, types.ProfessionDoctor, 120),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 50),
		beds(2011, types.SectorPublic, 60),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Nil(t, res.Records[1].WorkforceGrowthRate)
	assert.Nil(t, res.Records[1].PriorYearRatio)
	assert.Nil(t, res.Records[1].MismatchIndex)
}

func TestComputeMetrics_ExplicitWindow(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 110),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 50),
		beds(2010, types.SectorPublic, 55),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{Start: 2010, End: 2015})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Nil(t, res.Records[0].WorkforceGrowthRate)

	_, err = engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{Start: 2015, End: 2010})
	require.Error(t, err)
}

func TestComputeMetrics_FiltersInstitutionTypes(t *testing.T) {
	workforce := []types.WorkforceRecord{wf(2009, types.SectorPublic, types.ProfessionDoctor, 100)}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 50),
		{Year: 2009, Sector: types.SectorPublic, InstitutionType: "Polyclinic", NumBeds: i64(1000), NumFacilities: i64(18)},
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(50), res.Records[0].TotalCapacity)

	res, err = engine(t, Options{InstitutionTypes: []string{"Hospital", "Polyclinic"}, CapacityMeasure: MeasureFacilities}).
		ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(19), res.Records[0].TotalCapacity)
}

func TestComputeMetrics_AggregatesAcrossProfessions(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2009, types.SectorPublic, types.ProfessionNurse, 300),
		{Year: 2009, Sector: types.SectorPublic, Profession: types.ProfessionPharmacist},
	}
	capacity := []types.CapacityRecord{beds(2009, types.SectorPublic, 200)}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.Records[0].TotalWorkforce)
	assert.Equal(t, 1, res.NullsSkipped["workforce"])
}

func TestComputeMetrics_BenchmarkBoundaries(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 150),
		wf(2009, types.SectorPrivate, types.ProfessionDoctor, 250),
		wf(2009, types.SectorNotForProfit, types.ProfessionDoctor, 251),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 100),
		beds(2009, types.SectorPrivate, 100),
		beds(2009, types.SectorNotForProfit, 100),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	assert.True(t, res.Records[0].WithinBenchmark, "ratio equal to lower bound")
	assert.True(t, res.Records[1].WithinBenchmark, "ratio equal to upper bound")
	assert.False(t, res.Records[2].WithinBenchmark)
	assert.Equal(t, types.StatusWithinRange, res.Comparisons[0].Status)
	assert.Equal(t, types.StatusAboveRange, res.Comparisons[2].Status)
	require.NotNil(t, res.Comparisons[0].Deviation)
	assert.InDelta(t, -0.5, *res.Comparisons[0].Deviation, 1e-12)
}

func TestComputeMetrics_InactivePolicies(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 200),
		wf(2009, types.SectorInactive, types.ProfessionDoctor, 50),
	}
	capacity := []types.CapacityRecord{
		beds(2009, types.SectorPublic, 100),
		beds(2009, types.SectorInactive, 10),
	}

	res, err := engine(t, Options{}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Contains(t, res.Excluded, Exclusion{2009, types.SectorInactive, ReasonInactiveSector})

	res, err = engine(t, Options{InactivePolicy: InactiveExcludeFromBenchmark}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, types.SectorInactive, res.Records[1].Sector)
	assert.False(t, res.Records[1].WithinBenchmark)
	assert.Equal(t, types.StatusNotCompared, res.Comparisons[1].Status)
	assert.Nil(t, res.Comparisons[1].Deviation)

	res, err = engine(t, Options{InactivePolicy: InactiveInclude}).ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, types.StatusAboveRange, res.Comparisons[1].Status)
}

func TestComputeMetrics_IsPure(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 1000),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 1050),
	}
	capacity := []types.CapacityRecord{beds(2009, types.SectorPublic, 500), beds(2010, types.SectorPublic, 520)}
	e := engine(t, Options{})

	a, err := e.ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	b, err := e.ComputeMetrics(workforce, capacity, YearRange{})
	require.NoError(t, err)
	assert.Equal(t, a.Records, b.Records)
	assert.Equal(t, int64(1000), *workforce[0].Count)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil, Options{}, nil)
	require.Error(t, err)

	_, err = NewEngine(benchmarks.Default(), Options{Benchmark: "unknown"}, nil)
	var uerr *benchmarks.UnknownBenchmarkError
	require.ErrorAs(t, err, &uerr)

	_, err = NewEngine(benchmarks.Default(), Options{InactivePolicy: "ignore"}, nil)
	require.Error(t, err)

	_, err = NewEngine(benchmarks.Default(), Options{Numerator: types.ProfessionNurse, Denominator: types.ProfessionNurse}, nil)
	require.Error(t, err)

	_, err = NewEngine(benchmarks.Default(), Options{Significance: 1.5}, nil)
	require.Error(t, err)

	_, err = NewEngine(benchmarks.Default(), Options{BaseYear: -1}, nil)
	require.Error(t, err)
}
