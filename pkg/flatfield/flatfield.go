// Package flatfield removes the fixed-pattern artifacts of a camera and its
// illumination path from microscopy images.
//
// A darkfield records the sensor offset with no light; a flatfield records
// the relative illumination of a uniform sample. Correction subtracts the
// darkfield, clamps at zero, divides by the flatfield and maps the result
// back onto the intensity range the planes had before correction.
package flatfield

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/labeled"
)

// DegenerateFieldError reports a flatfield pixel that cannot be divided by.
type DegenerateFieldError struct {
	Row, Col int
	Value    float64
}

func (e *DegenerateFieldError) Error() string {
	return fmt.Sprintf("flatfield: degenerate value %g at (%d, %d), must be positive", e.Value, e.Row, e.Col)
}

// Fields holds a darkfield and a flatfield over the same two spatial axes.
// Fields are read-only once built and may be shared between goroutines.
type Fields struct {
	rowAxis, colAxis string
	rows, cols       int
	dark, flat       *mat.Dense
}

// NewFields validates a darkfield/flatfield pair. Both must be rank 2 with
// the same axes; the darkfield's axis order defines the spatial axes.
func NewFields(darkfield, flatfield *labeled.Array) (*Fields, error) {
	if darkfield.Rank() != 2 {
		return nil, &labeled.ShapeMismatchError{Op: "darkfield", Want: []int{-1, -1}, Got: darkfield.Shape()}
	}
	names := darkfield.AxisNames()
	rowAxis, colAxis := names[0], names[1]

	dark, err := darkfield.Matrix(rowAxis, colAxis)
	if err != nil {
		return nil, err
	}
	if flatfield.Rank() != 2 {
		return nil, &labeled.ShapeMismatchError{Op: "flatfield", Want: darkfield.Shape(), Got: flatfield.Shape()}
	}
	flat, err := flatfield.Matrix(rowAxis, colAxis)
	if err != nil {
		return nil, err
	}
	rows, cols := dark.Dims()
	if r, c := flat.Dims(); r != rows || c != cols {
		return nil, &labeled.ShapeMismatchError{Op: "flatfield", Want: []int{rows, cols}, Got: []int{r, c}}
	}
	if err := checkFlat(flat); err != nil {
		return nil, err
	}
	return &Fields{rowAxis: rowAxis, colAxis: colAxis, rows: rows, cols: cols, dark: dark, flat: flat}, nil
}

// Axes returns the spatial axis names, row axis first.
func (f *Fields) Axes() (rowAxis, colAxis string) { return f.rowAxis, f.colAxis }

func checkFlat(flat mat.Matrix) error {
	rows, cols := flat.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := flat.At(r, c); !(v > 0) {
				return &DegenerateFieldError{Row: r, Col: c, Value: v}
			}
		}
	}
	return nil
}

// Correct is a convenience wrapper for NewFields followed by Fields.Correct.
func Correct(img *labeled.Array, along labeled.Selector, darkfield, flatfield *labeled.Array) (*labeled.Array, error) {
	f, err := NewFields(darkfield, flatfield)
	if err != nil {
		return nil, err
	}
	return f.Correct(img, along)
}

// Correct returns a copy of img with the planes selected by along corrected.
// The zero Selector selects every plane; otherwise only planes whose
// coordinate on along.Axis is along.Label are corrected and all others are
// copied unchanged. The corrected planes are rescaled together onto the
// minimum and maximum they held before correction.
func (f *Fields) Correct(img *labeled.Array, along labeled.Selector) (*labeled.Array, error) {
	for _, name := range []string{f.rowAxis, f.colAxis} {
		n, err := img.Len(name)
		if err != nil {
			return nil, err
		}
		want := f.rows
		if name == f.colAxis {
			want = f.cols
		}
		if n != want {
			return nil, &labeled.ShapeMismatchError{Op: "flatfield correct " + name, Want: []int{want}, Got: []int{n}}
		}
	}
	if !along.IsZero() {
		if along.Axis == f.rowAxis || along.Axis == f.colAxis {
			return nil, fmt.Errorf("flatfield: cannot select along spatial axis %q", along.Axis)
		}
		if _, err := img.Position(along.Axis, along.Label); err != nil {
			return nil, err
		}
	}

	frames, err := img.Iter(f.rowAxis, f.colAxis)
	if err != nil {
		return nil, err
	}

	// corrected is indexed like frames; MapPlanes visits planes in Iter order.
	corrected := make([]*mat.Dense, len(frames))
	lo, hi := math.Inf(1), math.Inf(-1)
	qlo, qhi := math.Inf(1), math.Inf(-1)
	for i, ix := range frames {
		if !selected(ix, along) {
			continue
		}
		plane, err := img.Plane(ix, f.rowAxis, f.colAxis)
		if err != nil {
			return nil, err
		}
		lo, hi = math.Min(lo, mat.Min(plane)), math.Max(hi, mat.Max(plane))

		q, err := f.CorrectPlane(plane)
		if err != nil {
			return nil, fmt.Errorf("plane %v: %w", ix, err)
		}
		qlo, qhi = math.Min(qlo, mat.Min(q)), math.Max(qhi, mat.Max(q))
		corrected[i] = q
	}

	for _, q := range corrected {
		if q != nil {
			rescale(q, qlo, qhi, lo, hi)
		}
	}
	n := 0
	return img.MapPlanes(f.rowAxis, f.colAxis, func(_ labeled.Index, plane *mat.Dense) (*mat.Dense, error) {
		q := corrected[n]
		n++
		if q != nil {
			return q, nil
		}
		return plane, nil
	})
}

func selected(ix labeled.Index, along labeled.Selector) bool {
	if along.IsZero() {
		return true
	}
	label, ok := ix.Label(along.Axis)
	return ok && label == along.Label
}

// rescale maps [qlo, qhi] linearly onto [lo, hi] in place. A constant
// quotient maps to lo.
func rescale(q *mat.Dense, qlo, qhi, lo, hi float64) {
	span := qhi - qlo
	q.Apply(func(_, _ int, v float64) float64 {
		if span <= 0 {
			return lo
		}
		return lo + (v-qlo)*(hi-lo)/span
	}, q)
}

// CorrectPlane returns (plane - dark) clamped at zero and divided by flat,
// without rescaling.
func (f *Fields) CorrectPlane(plane mat.Matrix) (*mat.Dense, error) {
	return correct(plane, f.dark, f.flat)
}

// CorrectPlane applies dark subtraction, clamping and flat division to a
// single plane. The result is not rescaled.
func CorrectPlane(plane, dark, flat mat.Matrix) (*mat.Dense, error) {
	if err := checkFlat(flat); err != nil {
		return nil, err
	}
	return correct(plane, dark, flat)
}

func correct(plane, dark, flat mat.Matrix) (*mat.Dense, error) {
	rows, cols := plane.Dims()
	for _, m := range []mat.Matrix{dark, flat} {
		if r, c := m.Dims(); r != rows || c != cols {
			return nil, &labeled.ShapeMismatchError{Op: "flatfield plane", Want: []int{rows, cols}, Got: []int{r, c}}
		}
	}
	out := mat.NewDense(rows, cols, nil)
	out.Sub(plane, dark)
	out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, out)
	out.DivElem(out, flat)
	return out, nil
}
