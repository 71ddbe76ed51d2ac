// Package lightsource estimates how much of each timepoint's signal comes
// from the illumination itself rather than from the cells.
//
// Arc lamps and similar sources drift in total brightness over a time-lapse,
// and the background level of a field of view follows that drift. For every
// timepoint the estimator collects pixels far from any detected cell, fits a
// kernel density to their values and takes the half-width-at-height center
// of that density as the typical background level.
package lightsource

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellseg/internal/spatial"
	"cellseg/pkg/density"
	"cellseg/pkg/labeled"
	"cellseg/pkg/peak"
)

// DefaultMinBackground is the smallest background sample a level is
// estimated from.
const DefaultMinBackground = 30

// InsufficientBackgroundError reports a timepoint that has too few pixels
// far enough from the foreground to estimate a background level.
type InsufficientBackgroundError struct {
	Timepoint int
	Label     string
	Count     int
	Required  int
}

func (e *InsufficientBackgroundError) Error() string {
	return fmt.Sprintf("lightsource: timepoint %d (%s) has %d background pixels, need at least %d",
		e.Timepoint, e.Label, e.Count, e.Required)
}

// Foreground marks the pixels of one frame that belong to detected objects.
type Foreground interface {
	Dims() (rows, cols int)
	Foreground(row, col int) bool
}

// ThresholdMask treats every pixel of M above Cutoff as foreground.
type ThresholdMask struct {
	M      mat.Matrix
	Cutoff float64
}

func (t ThresholdMask) Dims() (rows, cols int) { return t.M.Dims() }

func (t ThresholdMask) Foreground(row, col int) bool { return t.M.At(row, col) > t.Cutoff }

// ThresholdMasks splits a time × row × col array into one ThresholdMask per
// timepoint.
func ThresholdMasks(a *labeled.Array, timeAxis, rowAxis, colAxis string, cutoff float64) ([]Foreground, error) {
	n, err := a.Len(timeAxis)
	if err != nil {
		return nil, err
	}
	out := make([]Foreground, n)
	for t := 0; t < n; t++ {
		m, err := a.Plane(labeled.Index{{Axis: timeAxis, Pos: t}}, rowAxis, colAxis)
		if err != nil {
			return nil, err
		}
		out[t] = ThresholdMask{M: m, Cutoff: cutoff}
	}
	return out, nil
}

// Params configures an Estimator.
type Params struct {
	TimeAxis string
	RowAxis  string
	ColAxis  string

	// MinBackground is the smallest background sample accepted.
	MinBackground int
}

// DefaultParams returns parameters for time/y/x images.
func DefaultParams() Params {
	return Params{
		TimeAxis:      "time",
		RowAxis:       "y",
		ColAxis:       "x",
		MinBackground: DefaultMinBackground,
	}
}

// Estimate is the background level of one timepoint together with the
// material it was derived from.
type Estimate struct {
	Timepoint int
	Label     string

	// Level is the half-width-at-height center of Density.
	Level float64

	// Background is the number of pixels the density was fit to.
	Background int

	Density density.Sample
}

// Estimator computes per-timepoint background levels.
type Estimator struct {
	params  Params
	density *density.Estimator
}

// NewEstimator returns an estimator that fits densities with kde. A nil kde
// uses density.NewEstimator.
func NewEstimator(params Params, kde *density.Estimator) *Estimator {
	if kde == nil {
		kde = density.NewEstimator()
	}
	if params.MinBackground <= 0 {
		params.MinBackground = DefaultMinBackground
	}
	return &Estimator{params: params, density: kde}
}

// EstimateFluctuation returns the background level of every timepoint of
// img, in time-axis order. A pixel counts as background when its distance
// to the nearest foreground pixel exceeds distance; h is the relative
// height passed to the peak locator.
func (e *Estimator) EstimateFluctuation(img *labeled.Array, foreground []Foreground, distance, h float64) ([]float64, error) {
	estimates, err := e.Estimate(img, foreground, distance, h)
	if err != nil {
		return nil, err
	}
	levels := make([]float64, len(estimates))
	for i, est := range estimates {
		levels[i] = est.Level
	}
	return levels, nil
}

// Estimate is EstimateFluctuation with the per-timepoint diagnostics.
func (e *Estimator) Estimate(img *labeled.Array, foreground []Foreground, distance, h float64) ([]Estimate, error) {
	timeAxis, err := e.checkAxes(img)
	if err != nil {
		return nil, err
	}
	if len(foreground) != timeAxis.Len() {
		return nil, &labeled.ShapeMismatchError{Op: "lightsource foreground masks", Want: []int{timeAxis.Len()}, Got: []int{len(foreground)}}
	}

	out := make([]Estimate, timeAxis.Len())
	for t := range out {
		plane, err := img.Plane(labeled.Index{{Axis: e.params.TimeAxis, Pos: t}}, e.params.RowAxis, e.params.ColAxis)
		if err != nil {
			return nil, err
		}
		est, err := e.estimateFrame(plane, foreground[t], distance, h)
		if err != nil {
			var bg *InsufficientBackgroundError
			if errors.As(err, &bg) {
				bg.Timepoint, bg.Label = t, timeAxis.Labels[t]
				return nil, bg
			}
			return nil, fmt.Errorf("timepoint %d (%s): %w", t, timeAxis.Labels[t], err)
		}
		est.Timepoint, est.Label = t, timeAxis.Labels[t]
		out[t] = est
	}
	return out, nil
}

// checkAxes requires img to hold exactly the time and spatial axes.
func (e *Estimator) checkAxes(img *labeled.Array) (labeled.Axis, error) {
	timeAxis, err := img.Axis(e.params.TimeAxis)
	if err != nil {
		return labeled.Axis{}, err
	}
	for _, name := range []string{e.params.RowAxis, e.params.ColAxis} {
		if _, err := img.AxisIndex(name); err != nil {
			return labeled.Axis{}, err
		}
	}
	if img.Rank() != 3 {
		return labeled.Axis{}, &labeled.ShapeMismatchError{Op: "lightsource image axes " + fmt.Sprint(img.AxisNames()), Want: []int{-1, -1, -1}, Got: img.Shape()}
	}
	return timeAxis, nil
}

func (e *Estimator) estimateFrame(plane *mat.Dense, fg Foreground, distance, h float64) (Estimate, error) {
	rows, cols := plane.Dims()
	if r, c := fg.Dims(); r != rows || c != cols {
		return Estimate{}, &labeled.ShapeMismatchError{Op: "lightsource foreground mask", Want: []int{rows, cols}, Got: []int{r, c}}
	}

	dist := DistanceTransform(fg)
	var background []float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if dist.At(r, c) > distance {
				background = append(background, plane.At(r, c))
			}
		}
	}
	if len(background) < e.params.MinBackground {
		return Estimate{}, &InsufficientBackgroundError{Count: len(background), Required: e.params.MinBackground}
	}

	d, err := e.density.Estimate(background)
	if err != nil {
		return Estimate{}, err
	}
	level, err := peak.LocateCenter(d.X, d.Y, h)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Level: level, Background: len(background), Density: d}, nil
}

// DistanceTransform returns the Euclidean distance of every pixel to the
// nearest foreground pixel. Foreground pixels are at distance 0; without
// any foreground every distance is +Inf.
func DistanceTransform(fg Foreground) *mat.Dense {
	rows, cols := fg.Dims()
	var pts spatial.Points
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if fg.Foreground(r, c) {
				pts = append(pts, spatial.Point{Row: float64(r), Col: float64(c)})
			}
		}
	}
	tree := spatial.NewTree(pts)

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if fg.Foreground(r, c) {
				continue
			}
			_, d := tree.Nearest(spatial.Point{Row: float64(r), Col: float64(c)})
			out.Set(r, c, d)
		}
	}
	return out
}

// Remove subtracts levels[t] from every pixel of timepoint t of img and
// clamps the result at zero. img may carry axes besides time; every plane
// at a timepoint is shifted by the same level.
func Remove(img *labeled.Array, timeAxis, rowAxis, colAxis string, levels []float64) (*labeled.Array, error) {
	n, err := img.Len(timeAxis)
	if err != nil {
		return nil, err
	}
	if len(levels) != n {
		return nil, &labeled.ShapeMismatchError{Op: "lightsource.Remove", Want: []int{n}, Got: []int{len(levels)}}
	}
	return img.MapPlanes(rowAxis, colAxis, func(ix labeled.Index, plane *mat.Dense) (*mat.Dense, error) {
		t, _ := ix.Pos(timeAxis)
		level := levels[t]
		plane.Apply(func(_, _ int, v float64) float64 {
			if v -= level; v < 0 {
				return 0
			}
			return v
		}, plane)
		return plane, nil
	})
}
