package labeled

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// resolve turns ix into a map from axis position to element position,
// validating every coordinate. A non-empty Label takes precedence over Pos.
func (a *Array) resolve(ix Index) (map[int]int, error) {
	fixed := make(map[int]int, len(ix))
	for _, c := range ix {
		d, err := a.AxisIndex(c.Axis)
		if err != nil {
			return nil, err
		}
		pos := c.Pos
		if c.Label != "" {
			pos = a.axes[d].Position(c.Label)
			if pos < 0 {
				return nil, &InvalidAxisError{Axis: c.Axis, Label: c.Label, Available: a.axes[d].clone().Labels}
			}
		}
		if pos < 0 || pos >= a.shape[d] {
			return nil, &InvalidAxisError{Axis: c.Axis, Label: strconv.Itoa(pos), Available: a.axes[d].clone().Labels}
		}
		if _, dup := fixed[d]; dup {
			return nil, fmt.Errorf("labeled: axis %q constrained twice", c.Axis)
		}
		fixed[d] = pos
	}
	return fixed, nil
}

// Iter enumerates every position of the axes not listed in keep, in
// row-major order. When every axis is kept a single empty Index is returned.
func (a *Array) Iter(keep ...string) ([]Index, error) {
	kept := make(map[int]bool, len(keep))
	for _, name := range keep {
		d, err := a.AxisIndex(name)
		if err != nil {
			return nil, err
		}
		kept[d] = true
	}

	var dims []int
	for d := range a.axes {
		if !kept[d] {
			dims = append(dims, d)
		}
	}

	total := 1
	for _, d := range dims {
		total *= a.shape[d]
	}
	out := make([]Index, 0, total)
	counter := make([]int, len(dims))
	for n := 0; n < total; n++ {
		ix := make(Index, len(dims))
		for k, d := range dims {
			ix[k] = Coord{Axis: a.axes[d].Name, Pos: counter[k], Label: a.axes[d].Labels[counter[k]]}
		}
		out = append(out, ix)
		for k := len(counter) - 1; k >= 0; k-- {
			counter[k]++
			if counter[k] < a.shape[dims[k]] {
				break
			}
			counter[k] = 0
		}
	}
	return out, nil
}

// Sub returns the array obtained by fixing every axis named in ix. Fixed
// axes are dropped; the remaining axes keep their order.
func (a *Array) Sub(ix Index) (*Array, error) {
	fixed, err := a.resolve(ix)
	if err != nil {
		return nil, err
	}

	base := 0
	var keep []int
	for d := range a.axes {
		if p, ok := fixed[d]; ok {
			base += p * a.strides[d]
		} else {
			keep = append(keep, d)
		}
	}

	axes := make([]Axis, len(keep))
	for k, d := range keep {
		axes[k] = a.axes[d].clone()
	}
	out := build(nil, axes)
	out.data = make([]float64, product(out.shape))

	counter := make([]int, len(keep))
	for i := range out.data {
		off := base
		for k, d := range keep {
			off += counter[k] * a.strides[d]
		}
		out.data[i] = a.data[off]
		for k := len(counter) - 1; k >= 0; k-- {
			counter[k]++
			if counter[k] < out.shape[k] {
				break
			}
			counter[k] = 0
		}
	}
	return out, nil
}

// Select fixes the named axis at the coordinate label and drops it.
func (a *Array) Select(name, label string) (*Array, error) {
	return a.Sub(Index{{Axis: name, Label: label}})
}

// SelectIndex fixes the named axis at position i and drops it.
func (a *Array) SelectIndex(name string, i int) (*Array, error) {
	return a.Sub(Index{{Axis: name, Pos: i}})
}

// Range crops the named axis to positions [start, end), keeping the axis.
func (a *Array) Range(name string, start, end int) (*Array, error) {
	d, err := a.AxisIndex(name)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > a.shape[d] || start >= end {
		return nil, fmt.Errorf("labeled: range [%d,%d) invalid for axis %q of length %d", start, end, name, a.shape[d])
	}

	axes := cloneAxes(a.axes)
	axes[d].Labels = axes[d].Labels[start:end]
	out := build(nil, axes)
	out.data = make([]float64, product(out.shape))

	counter := make([]int, len(out.shape))
	for i := range out.data {
		off := start * a.strides[d]
		for k := range counter {
			off += counter[k] * a.strides[k]
		}
		out.data[i] = a.data[off]
		for k := len(counter) - 1; k >= 0; k-- {
			counter[k]++
			if counter[k] < out.shape[k] {
				break
			}
			counter[k] = 0
		}
	}
	return out, nil
}

// planeLayout resolves the offsets needed to walk the (rowAxis, colAxis)
// plane that ix selects.
func (a *Array) planeLayout(ix Index, rowAxis, colAxis string) (base, rows, cols, rs, cs int, err error) {
	rd, err := a.AxisIndex(rowAxis)
	if err != nil {
		return
	}
	cd, err := a.AxisIndex(colAxis)
	if err != nil {
		return
	}
	if rd == cd {
		err = fmt.Errorf("labeled: plane needs two distinct axes, got %q twice", rowAxis)
		return
	}
	fixed, err := a.resolve(ix)
	if err != nil {
		return
	}
	for d := range a.axes {
		if d == rd || d == cd {
			continue
		}
		p, ok := fixed[d]
		if !ok {
			err = fmt.Errorf("labeled: axis %q is not fixed by index %v", a.axes[d].Name, ix)
			return
		}
		base += p * a.strides[d]
	}
	return base, a.shape[rd], a.shape[cd], a.strides[rd], a.strides[cd], nil
}

// Plane copies the 2-D plane spanned by rowAxis and colAxis at the position
// ix fixes for every other axis.
func (a *Array) Plane(ix Index, rowAxis, colAxis string) (*mat.Dense, error) {
	base, rows, cols, rs, cs, err := a.planeLayout(ix, rowAxis, colAxis)
	if err != nil {
		return nil, err
	}
	if rows == 0 || cols == 0 {
		return nil, &ShapeMismatchError{Op: "labeled.Plane", Want: []int{1, 1}, Got: []int{rows, cols}}
	}
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, a.data[base+r*rs+c*cs])
		}
	}
	return m, nil
}

// Matrix returns a rank-2 array as a matrix whose rows run along rowAxis.
func (a *Array) Matrix(rowAxis, colAxis string) (*mat.Dense, error) {
	if a.Rank() != 2 {
		return nil, &ShapeMismatchError{Op: "labeled.Matrix", Want: []int{-1, -1}, Got: a.Shape()}
	}
	return a.Plane(nil, rowAxis, colAxis)
}

// PlaneFunc maps one plane of an array to a replacement of the same size.
type PlaneFunc func(ix Index, plane *mat.Dense) (*mat.Dense, error)

// MapPlanes returns a new array in which every (rowAxis, colAxis) plane has
// been replaced by the result of fn. Planes are visited in the order Iter
// returns them.
func (a *Array) MapPlanes(rowAxis, colAxis string, fn PlaneFunc) (*Array, error) {
	frames, err := a.Iter(rowAxis, colAxis)
	if err != nil {
		return nil, err
	}
	out := build(append([]float64(nil), a.data...), cloneAxes(a.axes))
	for _, ix := range frames {
		plane, err := a.Plane(ix, rowAxis, colAxis)
		if err != nil {
			return nil, err
		}
		res, err := fn(ix, plane)
		if err != nil {
			return nil, err
		}
		if err := out.setPlane(ix, rowAxis, colAxis, res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// setPlane writes m into the plane ix selects. It is only used on arrays
// that have not been handed out yet.
func (a *Array) setPlane(ix Index, rowAxis, colAxis string, m mat.Matrix) error {
	base, rows, cols, rs, cs, err := a.planeLayout(ix, rowAxis, colAxis)
	if err != nil {
		return err
	}
	if r, c := m.Dims(); r != rows || c != cols {
		return &ShapeMismatchError{Op: "labeled.MapPlanes", Want: []int{rows, cols}, Got: []int{r, c}}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a.data[base+r*rs+c*cs] = m.At(r, c)
		}
	}
	return nil
}
