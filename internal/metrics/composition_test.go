package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/workforce-capacity/internal/types"
)

func TestComputeComposition(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2009, types.SectorPublic, types.ProfessionNurse, 300),
		wf(2009, types.SectorPublic, types.ProfessionPharmacist, 100),
		wf(2009, types.SectorPrivate, types.ProfessionDoctor, 100),
		wf(2009, types.SectorPrivate, types.ProfessionNurse, 0),
		wf(2010, types.SectorPublic, types.ProfessionNurse, 50),
	}

	res, err := engine(t, Options{}).ComputeComposition(workforce, YearRange{})
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.InDelta(t, 1.0/3.0, r.Ratio, 1e-12)
	assert.True(t, r.WithinNormalRange)
	assert.InDelta(t, 60.0, r.Shares[types.ProfessionNurse], 1e-12)
	assert.InDelta(t, 20.0, r.Shares[types.ProfessionDoctor], 1e-12)

	require.Len(t, res.Guards, 1)
	assert.Equal(t, types.SectorPrivate, res.Guards[0].Sector)
	assert.Equal(t, "Doctor_to_Nurse", res.Guards[0].Metric)
	assert.Contains(t, res.Excluded, Exclusion{2010, types.SectorPublic, "no Doctor records"})
}

func TestComputeComposition_YearWindow(t *testing.T) {
	workforce := []types.WorkforceRecord{
		wf(2009, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2009, types.SectorPublic, types.ProfessionNurse, 100),
		wf(2010, types.SectorPublic, types.ProfessionDoctor, 100),
		wf(2010, types.SectorPublic, types.ProfessionNurse, 400),
	}

	res, err := engine(t, Options{}).ComputeComposition(workforce, YearRange{Start: 2010, End: 2010})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 2010, res.Records[0].Year)
	assert.True(t, res.Records[0].WithinNormalRange)

	_, err = engine(t, Options{}).ComputeComposition(workforce, YearRange{Start: 2011, End: 2010})
	require.Error(t, err)
}
