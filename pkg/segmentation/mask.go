package segmentation

import (
	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/labeled"
)

// Mask is the label map of one frame: 0 marks background and 1..Count mark
// distinct cells. Masks are not modified after Segment returns them.
type Mask struct {
	// Index locates the frame in the source image.
	Index labeled.Index

	Rows, Cols int

	// Labels holds one label per pixel in row-major order.
	Labels []int

	// Count is the number of cells.
	Count int

	// Seeds holds the seed of every cell; label k grew from Seeds[k-1].
	Seeds []Seed
}

// Dims returns the frame size.
func (m *Mask) Dims() (rows, cols int) { return m.Rows, m.Cols }

// At returns the label of pixel (r, c).
func (m *Mask) At(r, c int) int { return m.Labels[r*m.Cols+c] }

// Foreground reports whether pixel (r, c) belongs to any cell.
func (m *Mask) Foreground(r, c int) bool { return m.At(r, c) != 0 }

// Areas returns the pixel count of every label; Areas()[0] counts
// background.
func (m *Mask) Areas() []int {
	areas := make([]int, m.Count+1)
	for _, l := range m.Labels {
		areas[l]++
	}
	return areas
}

// Matrix returns the label map as a matrix.
func (m *Mask) Matrix() *mat.Dense {
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for i, l := range m.Labels {
		d.Set(i/m.Cols, i%m.Cols, float64(l))
	}
	return d
}
