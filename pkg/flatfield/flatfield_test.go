package flatfield

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/labeled"
)

func field(t *testing.T, rows, cols int, data ...float64) *labeled.Array {
	t.Helper()
	a, err := labeled.New(data, labeled.RangeAxis("y", rows), labeled.RangeAxis("x", cols))
	require.NoError(t, err)
	return a
}

func constant(t *testing.T, rows, cols int, v float64) *labeled.Array {
	t.Helper()
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return field(t, rows, cols, data...)
}

func TestCorrectIdentityFields(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	data := make([]float64, 3*4*5)
	for i := range data {
		data[i] = rng.Float64()
	}
	img, err := labeled.New(data, labeled.RangeAxis("time", 3), labeled.RangeAxis("y", 4), labeled.RangeAxis("x", 5))
	require.NoError(t, err)

	out, err := Correct(img, labeled.Selector{}, constant(t, 4, 5, 0), constant(t, 4, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, img.AxisNames(), out.AxisNames())
	assert.InDeltaSlice(t, data, out.Data(), 1e-12)
}

func TestCorrectRescalesOntoInputRange(t *testing.T) {
	img := field(t, 2, 2, 1, 2, 3, 4)
	dark := constant(t, 2, 2, 0)
	flat := field(t, 2, 2, 1, 1, 2, 2)

	out, err := Correct(img, labeled.Selector{}, dark, flat)
	require.NoError(t, err)
	// Quotient is [1 2 1.5 2], stretched from [1, 2] onto [1, 4].
	assert.InDeltaSlice(t, []float64{1, 4, 2.5, 4}, out.Data(), 1e-12)
	assert.Equal(t, []float64{1, 2, 3, 4}, img.Data())
}

func TestCorrectConstantQuotient(t *testing.T) {
	img := field(t, 1, 3, 0.2, 0.4, 0.6)
	flat := field(t, 1, 3, 1, 2, 3)

	out, err := Correct(img, labeled.Selector{}, constant(t, 1, 3, 0), flat)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.2, 0.2}, out.Data(), 1e-12)
}

func TestCorrectAlongChannel(t *testing.T) {
	img, err := labeled.New([]float64{
		1, 2, 3, 4, // DAPI
		5, 6, 7, 8, // GFP
	}, labeled.NewAxis("channel", "DAPI", "GFP"), labeled.RangeAxis("y", 2), labeled.RangeAxis("x", 2))
	require.NoError(t, err)

	dark := field(t, 2, 2, 1, 1, 1, 1)
	flat := field(t, 2, 2, 1, 1, 2, 2)
	out, err := Correct(img, labeled.Selector{Axis: "channel", Label: "DAPI"}, dark, flat)
	require.NoError(t, err)

	// DAPI quotient is [0 1 1 1.5], stretched onto [1, 4].
	assert.InDeltaSlice(t, []float64{1, 3, 3, 4, 5, 6, 7, 8}, out.Data(), 1e-12)
}

func TestCorrectKeepsPlanesWithLookalikeLabels(t *testing.T) {
	data := []float64{10, 15, 20, 25, 30, 35, 40, 45}
	img, err := labeled.New(data,
		labeled.NewAxis("p", "a", "a q=b"),
		labeled.NewAxis("q", "b q=c", "c"),
		labeled.RangeAxis("y", 1), labeled.RangeAxis("x", 2))
	require.NoError(t, err)
	dark, flat := constant(t, 1, 2, 0), constant(t, 1, 2, 1)

	out, err := Correct(img, labeled.Selector{}, dark, flat)
	require.NoError(t, err)
	assert.InDeltaSlice(t, data, out.Data(), 1e-12)

	out, err = Correct(img, labeled.Selector{Axis: "p", Label: "a q=b"}, dark, flat)
	require.NoError(t, err)
	assert.InDeltaSlice(t, data, out.Data(), 1e-12)
}

func TestCorrectFieldAxisOrder(t *testing.T) {
	img := field(t, 2, 3, 1, 2, 3, 4, 5, 6)

	// A darkfield stored x-major only offsets the top-left pixel.
	dark, err := labeled.New([]float64{1, 0, 0, 0, 0, 0}, labeled.RangeAxis("x", 3), labeled.RangeAxis("y", 2))
	require.NoError(t, err)
	flat, err := labeled.New([]float64{1, 1, 1, 1, 1, 1}, labeled.RangeAxis("x", 3), labeled.RangeAxis("y", 2))
	require.NoError(t, err)

	f, err := NewFields(dark, flat)
	require.NoError(t, err)
	rowAxis, colAxis := f.Axes()
	assert.Equal(t, "x", rowAxis)
	assert.Equal(t, "y", colAxis)

	plane, err := img.Matrix("x", "y")
	require.NoError(t, err)
	q, err := f.CorrectPlane(plane)
	require.NoError(t, err)
	assert.Equal(t, 0.0, q.At(0, 0))
	assert.Equal(t, 4.0, q.At(0, 1))
	assert.Equal(t, 2.0, q.At(1, 0))
}

func TestCorrectPlaneNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	plane := mat.NewDense(8, 8, nil)
	dark := mat.NewDense(8, 8, nil)
	flat := mat.NewDense(8, 8, nil)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			plane.Set(r, c, rng.Float64())
			dark.Set(r, c, rng.Float64())
			flat.Set(r, c, 0.1+rng.Float64())
		}
	}
	q, err := CorrectPlane(plane, dark, flat)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mat.Min(q), 0.0)

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			want := (plane.At(r, c) - dark.At(r, c)) / flat.At(r, c)
			if plane.At(r, c) < dark.At(r, c) {
				want = 0
			}
			assert.InDelta(t, want, q.At(r, c), 1e-12)
		}
	}
}

func TestDegenerateFlatfield(t *testing.T) {
	img := field(t, 2, 2, 1, 2, 3, 4)
	flat := field(t, 2, 2, 1, 1, 0, 1)

	_, err := Correct(img, labeled.Selector{}, constant(t, 2, 2, 0), flat)
	var degErr *DegenerateFieldError
	require.ErrorAs(t, err, &degErr)
	assert.Equal(t, 1, degErr.Row)
	assert.Equal(t, 0, degErr.Col)

	_, err = CorrectPlane(mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, nil), mat.NewDense(1, 1, []float64{-2}))
	assert.ErrorAs(t, err, &degErr)
}

func TestCorrectErrors(t *testing.T) {
	img, err := labeled.New(make([]float64, 2*2*2),
		labeled.NewAxis("channel", "DAPI", "GFP"), labeled.RangeAxis("y", 2), labeled.RangeAxis("x", 2))
	require.NoError(t, err)
	dark, flat := constant(t, 2, 2, 0), constant(t, 2, 2, 1)

	var axisErr *labeled.InvalidAxisError
	_, err = Correct(img, labeled.Selector{Axis: "channel", Label: "RFP"}, dark, flat)
	assert.ErrorAs(t, err, &axisErr)

	_, err = Correct(img, labeled.Selector{Axis: "wavelength", Label: "DAPI"}, dark, flat)
	assert.ErrorAs(t, err, &axisErr)

	otherDark, err := labeled.New([]float64{0, 0, 0, 0}, labeled.RangeAxis("row", 2), labeled.RangeAxis("col", 2))
	require.NoError(t, err)
	otherFlat, err := otherDark.WithData([]float64{1, 1, 1, 1})
	require.NoError(t, err)
	_, err = Correct(img, labeled.Selector{}, otherDark, otherFlat)
	assert.ErrorAs(t, err, &axisErr)

	var shapeErr *labeled.ShapeMismatchError
	_, err = Correct(img, labeled.Selector{}, constant(t, 2, 3, 0), constant(t, 2, 3, 1))
	assert.ErrorAs(t, err, &shapeErr)

	_, err = Correct(img, labeled.Selector{}, dark, constant(t, 3, 2, 1))
	assert.ErrorAs(t, err, &shapeErr)

	_, err = NewFields(img, img)
	assert.ErrorAs(t, err, &shapeErr)

	_, err = Correct(img, labeled.Selector{Axis: "x", Label: "0"}, dark, flat)
	assert.Error(t, err)
}
