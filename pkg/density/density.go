// Package density fits a continuous Gaussian kernel density to a sample of
// scalar values and evaluates it on a regular grid.
package density

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrEmptySample is returned when a sample holds no finite values.
var ErrEmptySample = errors.New("density: sample has no finite values")

// Method selects how the kernel sum is evaluated.
type Method int

const (
	// FFT bins the sample linearly onto the grid and convolves it with the
	// kernel in the frequency domain.
	FFT Method = iota

	// Direct sums one kernel per sample at every grid point.
	Direct
)

func (m Method) String() string {
	switch m {
	case FFT:
		return "fft"
	case Direct:
		return "direct"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "fft" or "direct" to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "fft", "":
		return FFT, nil
	case "direct":
		return Direct, nil
	default:
		return FFT, fmt.Errorf("density: unknown method %q", s)
	}
}

// Sample is a density evaluated on a grid. X is strictly increasing and
// every Y is non-negative.
type Sample struct {
	X []float64
	Y []float64

	// Bandwidth is the kernel standard deviation that produced Y.
	Bandwidth float64
}

// Step returns the grid spacing.
func (s Sample) Step() float64 {
	if len(s.X) < 2 {
		return 0
	}
	return s.X[1] - s.X[0]
}

// Estimator evaluates Gaussian kernel density estimates.
type Estimator struct {
	// Bandwidth is the kernel standard deviation. Zero selects Silverman's
	// rule of thumb for every sample.
	Bandwidth float64

	// MinBandwidth floors the bandwidth so that samples of identical values
	// still yield a finite density.
	MinBandwidth float64

	// GridSize is the number of evaluation points.
	GridSize int

	// Padding extends the grid this many bandwidths beyond the sample
	// extrema.
	Padding float64

	Method Method
}

// NewEstimator returns an estimator with automatic bandwidth, a 2048-point
// grid padded by four bandwidths, and FFT evaluation.
func NewEstimator() *Estimator {
	return &Estimator{
		MinBandwidth: 1e-6,
		GridSize:     2048,
		Padding:      4,
		Method:       FFT,
	}
}

// Estimate fits the density of samples. Non-finite values are ignored.
func (e *Estimator) Estimate(samples []float64) (Sample, error) {
	data := finite(samples)
	if len(data) == 0 {
		return Sample{}, ErrEmptySample
	}
	if e.GridSize < 2 {
		return Sample{}, fmt.Errorf("density: grid size %d too small", e.GridSize)
	}
	if !(e.Padding >= 0) {
		return Sample{}, fmt.Errorf("density: padding %g must not be negative", e.Padding)
	}
	sort.Float64s(data)

	bw := e.Bandwidth
	if bw <= 0 {
		bw = SilvermanBandwidth(data)
	}
	if bw < e.MinBandwidth || !(bw > 0) {
		bw = math.Max(e.MinBandwidth, math.SmallestNonzeroFloat64)
	}

	lo := data[0] - e.Padding*bw
	hi := data[len(data)-1] + e.Padding*bw
	if !(hi > lo) {
		// Zero padding on a constant sample; widen to one bandwidth each way.
		lo, hi = data[0]-bw, data[0]+bw
	}
	grid := floats.Span(make([]float64, e.GridSize), lo, hi)

	var y []float64
	switch e.Method {
	case Direct:
		y = direct(data, grid, bw)
	case FFT:
		y = binned(data, grid, bw)
	default:
		return Sample{}, fmt.Errorf("density: unknown method %v", e.Method)
	}
	return Sample{X: grid, Y: y, Bandwidth: bw}, nil
}

// SilvermanBandwidth returns 0.9·min(σ, IQR/1.34)·n^(-1/5) for a sorted
// sample. It falls back to whichever spread estimate is positive and returns
// 0 for a constant sample.
func SilvermanBandwidth(sorted []float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}
	sd := stat.StdDev(sorted, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
	width := sd
	if r := iqr / 1.34; r > 0 && r < width {
		width = r
	}
	if !(width > 0) {
		width = iqr / 1.34
	}
	if !(width > 0) {
		return 0
	}
	return 0.9 * width * math.Pow(float64(n), -0.2)
}

func finite(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func direct(data, grid []float64, bw float64) []float64 {
	kernel := distuv.Normal{Mu: 0, Sigma: bw}
	y := make([]float64, len(grid))
	n := float64(len(data))
	for j, g := range grid {
		var sum float64
		for _, v := range data {
			sum += kernel.Prob(g - v)
		}
		y[j] = sum / n
	}
	return y
}

// binned spreads each sample linearly over its two neighbouring grid
// points and convolves the resulting weights with a Gaussian by multiplying
// with its characteristic function. The grid padding keeps the circular
// wrap-around of the FFT below the kernel's tail mass.
func binned(data, grid []float64, bw float64) []float64 {
	m := len(grid)
	lo := grid[0]
	dx := grid[1] - grid[0]

	weights := make([]float64, m)
	share := 1 / float64(len(data))
	for _, v := range data {
		pos := (v - lo) / dx
		k := int(math.Floor(pos))
		frac := pos - float64(k)
		switch {
		case k < 0:
			weights[0] += share
		case k >= m-1:
			weights[m-1] += share
		default:
			weights[k] += (1 - frac) * share
			weights[k+1] += frac * share
		}
	}

	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, weights)
	period := float64(m) * dx
	for l := range coeff {
		omega := 2 * math.Pi * float64(l) / period
		coeff[l] *= complex(math.Exp(-0.5*bw*bw*omega*omega), 0)
	}
	y := fft.Sequence(nil, coeff)

	// Sequence is unnormalized; divide by m, then by dx to turn bin mass
	// into density.
	scale := 1 / (float64(m) * dx)
	for i := range y {
		y[i] *= scale
		if y[i] < 0 {
			y[i] = 0
		}
	}
	return y
}
