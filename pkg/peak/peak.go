// Package peak locates the center of a peak in a sampled curve by bisecting
// its width at a fraction of the peak height. The bisector is insensitive to
// a one-sided tail as long as the peak itself is well sampled.
package peak

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrLengthMismatch is returned when x and y differ in length.
	ErrLengthMismatch = errors.New("peak: x and y must have equal length")

	// ErrEmpty is returned for curves without samples.
	ErrEmpty = errors.New("peak: no samples")

	// ErrHeight is returned when the relative height is not in (0, 1).
	ErrHeight = errors.New("peak: relative height must be in (0, 1)")

	// ErrNonFinite is returned when x or y holds a NaN or an infinity.
	ErrNonFinite = errors.New("peak: samples must be finite")

	// ErrNoPeak is returned when the curve has no positive maximum.
	ErrNoPeak = errors.New("peak: curve has no positive maximum")
)

// BoundaryCrossingError reports that the curve never fell to the requested
// height on one side of its maximum, i.e. the sampled domain does not
// bracket the peak.
type BoundaryCrossingError struct {
	// Side is "left" or "right".
	Side string

	// PeakX and Level describe the peak position and the height that was
	// never reached.
	PeakX float64
	Level float64
}

func (e *BoundaryCrossingError) Error() string {
	return fmt.Sprintf("peak: curve does not fall to %g on the %s of the peak at x=%g", e.Level, e.Side, e.PeakX)
}

type sample struct{ x, y float64 }

// LocateCenter returns the midpoint of the two positions where y crosses
// h times its maximum on either side of the maximum, interpolating linearly
// between samples. The pairs need not be sorted.
func LocateCenter(x, y []float64, h float64) (float64, error) {
	left, right, err := Crossings(x, y, h)
	if err != nil {
		return math.NaN(), err
	}
	return (left + right) / 2, nil
}

// Crossings returns the interpolated positions left and right of the
// maximum where y first falls to h times its maximum.
func Crossings(x, y []float64, h float64) (left, right float64, err error) {
	if len(x) != len(y) {
		return math.NaN(), math.NaN(), ErrLengthMismatch
	}
	if len(x) == 0 {
		return math.NaN(), math.NaN(), ErrEmpty
	}
	if !(h > 0 && h < 1) {
		return math.NaN(), math.NaN(), ErrHeight
	}

	pts := make([]sample, len(x))
	for i := range x {
		if !finite(x[i]) || !finite(y[i]) {
			return math.NaN(), math.NaN(), ErrNonFinite
		}
		pts[i] = sample{x[i], y[i]}
	}
	// Equal x values are ordered by y so ties sort deterministically.
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	top := 0
	for i, p := range pts {
		if p.y > pts[top].y {
			top = i
		}
	}
	ymax := pts[top].y
	if !(ymax > 0) {
		return math.NaN(), math.NaN(), ErrNoPeak
	}
	level := h * ymax

	left = math.NaN()
	for i := top - 1; i >= 0; i-- {
		if pts[i].y <= level {
			left = interpolate(pts[i], pts[i+1], level)
			break
		}
	}
	if math.IsNaN(left) {
		return math.NaN(), math.NaN(), &BoundaryCrossingError{Side: "left", PeakX: pts[top].x, Level: level}
	}

	right = math.NaN()
	for i := top + 1; i < len(pts); i++ {
		if pts[i].y <= level {
			right = interpolate(pts[i], pts[i-1], level)
			break
		}
	}
	if math.IsNaN(right) {
		return math.NaN(), math.NaN(), &BoundaryCrossingError{Side: "right", PeakX: pts[top].x, Level: level}
	}
	return left, right, nil
}

// interpolate returns the x between below and above where the line through
// them reaches level. below.y <= level < above.y.
func interpolate(below, above sample, level float64) float64 {
	dy := above.y - below.y
	if dy == 0 {
		return below.x
	}
	return below.x + (level-below.y)/dy*(above.x-below.x)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
