package density

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cellseg/pkg/peak"
)

func normalSample(n int, mu, sigma float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = mu + sigma*rng.NormFloat64()
	}
	return out
}

func TestEstimateIntegratesToOne(t *testing.T) {
	data := normalSample(500, 0.3, 0.05, 1)
	for _, method := range []Method{FFT, Direct} {
		e := NewEstimator()
		e.Method = method
		s, err := e.Estimate(data)
		require.NoError(t, err, method.String())

		require.Len(t, s.X, e.GridSize)
		require.Len(t, s.Y, e.GridSize)
		for i := 1; i < len(s.X); i++ {
			require.Greater(t, s.X[i], s.X[i-1])
		}
		for _, v := range s.Y {
			require.GreaterOrEqual(t, v, 0.0)
		}
		assert.InDelta(t, 1.0, floats.Sum(s.Y)*s.Step(), 0.01, method.String())
	}
}

func TestFFTMatchesDirect(t *testing.T) {
	data := normalSample(400, 10, 2, 2)
	fast := NewEstimator()
	exact := NewEstimator()
	exact.Method = Direct

	a, err := fast.Estimate(data)
	require.NoError(t, err)
	b, err := exact.Estimate(data)
	require.NoError(t, err)
	require.Equal(t, a.X, b.X)

	peakY := floats.Max(b.Y)
	for i := range a.Y {
		assert.InDelta(t, b.Y[i], a.Y[i], 0.01*peakY, "grid point %d", i)
	}
}

func TestSilvermanBandwidth(t *testing.T) {
	data := normalSample(1000, 0, 1, 3)
	sort.Float64s(data)
	sd := stat.StdDev(data, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, data, nil) - stat.Quantile(0.25, stat.Empirical, data, nil)
	want := 0.9 * math.Min(sd, iqr/1.34) * math.Pow(1000, -0.2)
	assert.InDelta(t, want, SilvermanBandwidth(data), 1e-12)

	assert.Zero(t, SilvermanBandwidth([]float64{4, 4, 4, 4}))
	assert.Zero(t, SilvermanBandwidth([]float64{1}))
}

func TestEstimateExplicitBandwidth(t *testing.T) {
	e := NewEstimator()
	e.Bandwidth = 0.5
	s, err := e.Estimate([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Bandwidth)
	assert.InDelta(t, 1-4*0.5, s.X[0], 1e-12)
	assert.InDelta(t, 3+4*0.5, s.X[len(s.X)-1], 1e-12)
}

func TestEstimateConstantSampleUsesFloor(t *testing.T) {
	e := NewEstimator()
	e.MinBandwidth = 1e-3
	s, err := e.Estimate([]float64{0.2, 0.2, 0.2, 0.2, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1e-3, s.Bandwidth)

	c, err := peak.LocateCenter(s.X, s.Y, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, c, 1e-5)
}

func TestEstimatePeakOfSkewedBackground(t *testing.T) {
	// Background at 0.1 contaminated by a diffuse population of brighter
	// misclassified pixels.
	data := normalSample(2000, 0.1, 0.01, 4)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 400; i++ {
		data = append(data, 0.1+0.3*rng.Float64())
	}

	s, err := NewEstimator().Estimate(data)
	require.NoError(t, err)
	c, err := peak.LocateCenter(s.X, s.Y, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, c, 0.005)
	assert.Greater(t, stat.Mean(data, nil), 0.115)
}

func TestEstimateRejectsEmpty(t *testing.T) {
	_, err := NewEstimator().Estimate(nil)
	assert.ErrorIs(t, err, ErrEmptySample)

	_, err = NewEstimator().Estimate([]float64{math.NaN(), math.Inf(1)})
	assert.ErrorIs(t, err, ErrEmptySample)

	e := NewEstimator()
	e.GridSize = 1
	_, err = e.Estimate([]float64{1, 2})
	assert.Error(t, err)

	e = NewEstimator()
	e.Padding = -1
	_, err = e.Estimate([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("direct")
	require.NoError(t, err)
	assert.Equal(t, Direct, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, FFT, m)

	_, err = ParseMethod("histogram")
	assert.Error(t, err)
}
