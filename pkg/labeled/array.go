// Package labeled provides an N-dimensional float64 array whose axes carry
// names and per-position coordinate labels, so that callers can index and
// slice by meaning ("channel=DAPI", "time=3") instead of by position.
//
// Arrays are immutable by convention: every operation that changes values
// or shape returns a new Array and leaves its receiver untouched.
package labeled

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Array is a dense row-major buffer with named, labelled axes.
type Array struct {
	data    []float64
	shape   []int
	strides []int
	axes    []Axis
}

// New returns an array holding a copy of data laid out row-major over axes.
func New(data []float64, axes ...Axis) (*Array, error) {
	if err := validateAxes(axes); err != nil {
		return nil, err
	}
	a := build(append([]float64(nil), data...), cloneAxes(axes))
	if n := product(a.shape); n != len(data) {
		return nil, &ShapeMismatchError{Op: "labeled.New", Want: a.shape, Got: []int{len(data)}}
	}
	return a, nil
}

// Zeros returns a zero-filled array over axes.
func Zeros(axes ...Axis) (*Array, error) {
	if err := validateAxes(axes); err != nil {
		return nil, err
	}
	a := build(nil, cloneAxes(axes))
	a.data = make([]float64, product(a.shape))
	return a, nil
}

// FromMatrix returns a rank-2 array whose first axis runs over the rows of m.
func FromMatrix(m mat.Matrix, rowAxis, colAxis Axis) (*Array, error) {
	r, c := m.Dims()
	if rowAxis.Len() != r || colAxis.Len() != c {
		return nil, &ShapeMismatchError{Op: "labeled.FromMatrix", Want: []int{rowAxis.Len(), colAxis.Len()}, Got: []int{r, c}}
	}
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return New(data, rowAxis, colAxis)
}

// Stack joins arrays that share the same axes along a new leading axis.
func Stack(axis Axis, arrays ...*Array) (*Array, error) {
	if axis.Len() != len(arrays) {
		return nil, &ShapeMismatchError{Op: "labeled.Stack", Want: []int{axis.Len()}, Got: []int{len(arrays)}}
	}
	if len(arrays) == 0 {
		return nil, fmt.Errorf("labeled.Stack: no arrays")
	}
	first := arrays[0]
	data := make([]float64, 0, len(arrays)*len(first.data))
	for i, a := range arrays {
		if !sameAxes(first.axes, a.axes) {
			return nil, &ShapeMismatchError{Op: fmt.Sprintf("labeled.Stack[%d]", i), Want: first.Shape(), Got: a.Shape()}
		}
		data = append(data, a.data...)
	}
	axes := append([]Axis{axis.clone()}, cloneAxes(first.axes)...)
	if err := validateAxes(axes); err != nil {
		return nil, err
	}
	return build(data, axes), nil
}

func build(data []float64, axes []Axis) *Array {
	a := &Array{data: data, axes: axes}
	a.shape = make([]int, len(axes))
	for i, ax := range axes {
		a.shape[i] = ax.Len()
	}
	a.strides = make([]int, len(axes))
	stride := 1
	for i := len(axes) - 1; i >= 0; i-- {
		a.strides[i] = stride
		stride *= a.shape[i]
	}
	return a
}

func validateAxes(axes []Axis) error {
	seen := make(map[string]bool, len(axes))
	for _, ax := range axes {
		if ax.Name == "" {
			return fmt.Errorf("labeled: unnamed axis")
		}
		if seen[ax.Name] {
			return fmt.Errorf("labeled: duplicate axis %q", ax.Name)
		}
		seen[ax.Name] = true
		labels := make(map[string]bool, ax.Len())
		for _, l := range ax.Labels {
			if labels[l] {
				return fmt.Errorf("labeled: duplicate coordinate %q on axis %q", l, ax.Name)
			}
			labels[l] = true
		}
	}
	return nil
}

func cloneAxes(axes []Axis) []Axis {
	out := make([]Axis, len(axes))
	for i, ax := range axes {
		out[i] = ax.clone()
	}
	return out
}

func sameAxes(a, b []Axis) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Len() != b[i].Len() {
			return false
		}
		for j := range a[i].Labels {
			if a[i].Labels[j] != b[i].Labels[j] {
				return false
			}
		}
	}
	return true
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.axes) }

// Shape returns the length of every axis, in axis order.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Size returns the number of elements.
func (a *Array) Size() int { return len(a.data) }

// Axes returns a copy of the axis metadata.
func (a *Array) Axes() []Axis { return cloneAxes(a.axes) }

// AxisNames returns the axis names in order.
func (a *Array) AxisNames() []string {
	names := make([]string, len(a.axes))
	for i, ax := range a.axes {
		names[i] = ax.Name
	}
	return names
}

// AxisIndex returns the position of the named axis.
func (a *Array) AxisIndex(name string) (int, error) {
	for i, ax := range a.axes {
		if ax.Name == name {
			return i, nil
		}
	}
	return -1, &InvalidAxisError{Axis: name, Available: a.AxisNames()}
}

// HasAxis reports whether the array has an axis called name.
func (a *Array) HasAxis(name string) bool {
	_, err := a.AxisIndex(name)
	return err == nil
}

// Axis returns a copy of the named axis.
func (a *Array) Axis(name string) (Axis, error) {
	d, err := a.AxisIndex(name)
	if err != nil {
		return Axis{}, err
	}
	return a.axes[d].clone(), nil
}

// Len returns the length of the named axis.
func (a *Array) Len(name string) (int, error) {
	d, err := a.AxisIndex(name)
	if err != nil {
		return 0, err
	}
	return a.shape[d], nil
}

// Position resolves a coordinate label along the named axis.
func (a *Array) Position(name, label string) (int, error) {
	d, err := a.AxisIndex(name)
	if err != nil {
		return -1, err
	}
	p := a.axes[d].Position(label)
	if p < 0 {
		return -1, &InvalidAxisError{Axis: name, Label: label, Available: a.axes[d].clone().Labels}
	}
	return p, nil
}

// At returns the element at the given positions, one per axis.
func (a *Array) At(idx ...int) float64 {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("labeled: At called with %d indices on rank %d array", len(idx), len(a.shape)))
	}
	off := 0
	for d, i := range idx {
		if i < 0 || i >= a.shape[d] {
			panic(fmt.Sprintf("labeled: index %d out of range on axis %q", i, a.axes[d].Name))
		}
		off += i * a.strides[d]
	}
	return a.data[off]
}

// Data returns a copy of the row-major buffer.
func (a *Array) Data() []float64 { return append([]float64(nil), a.data...) }

// Min returns the smallest element, or NaN for an empty array.
func (a *Array) Min() float64 {
	if len(a.data) == 0 {
		return math.NaN()
	}
	return floats.Min(a.data)
}

// Max returns the largest element, or NaN for an empty array.
func (a *Array) Max() float64 {
	if len(a.data) == 0 {
		return math.NaN()
	}
	return floats.Max(a.data)
}

// WithData returns an array with the receiver's axes and a copy of data.
func (a *Array) WithData(data []float64) (*Array, error) {
	if len(data) != len(a.data) {
		return nil, &ShapeMismatchError{Op: "labeled.WithData", Want: a.Shape(), Got: []int{len(data)}}
	}
	return build(append([]float64(nil), data...), cloneAxes(a.axes)), nil
}

// Map returns a new array with fn applied to every element.
func (a *Array) Map(fn func(float64) float64) *Array {
	out := make([]float64, len(a.data))
	for i, v := range a.data {
		out[i] = fn(v)
	}
	return build(out, cloneAxes(a.axes))
}
