package cleaning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantile_LinearInterpolation(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(s, 0.25), 1e-12)
	assert.InDelta(t, 3.25, quantile(s, 0.75), 1e-12)
	assert.Equal(t, 5.0, quantile([]float64{5}, 0.5))
}

func TestSampleStd(t *testing.T) {
	assert.InDelta(t, 1.2909944, sampleStd([]float64{1, 2, 3, 4}), 1e-6)
	assert.Zero(t, sampleStd([]float64{3}))
}
