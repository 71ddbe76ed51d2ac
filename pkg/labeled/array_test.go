package labeled

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stack returns a channel x time x y x x array whose value encodes its
// position: c*1000 + t*100 + y*10 + x.
func stack(t *testing.T) *Array {
	t.Helper()
	axes := []Axis{
		NewAxis("channel", "DAPI", "GFP"),
		RangeAxis("time", 3),
		RangeAxis("y", 4),
		RangeAxis("x", 5),
	}
	var data []float64
	for c := 0; c < 2; c++ {
		for ti := 0; ti < 3; ti++ {
			for y := 0; y < 4; y++ {
				for x := 0; x < 5; x++ {
					data = append(data, float64(c*1000+ti*100+y*10+x))
				}
			}
		}
	}
	a, err := New(data, axes...)
	require.NoError(t, err)
	return a
}

func TestNewValidatesShape(t *testing.T) {
	_, err := New(make([]float64, 5), RangeAxis("y", 2), RangeAxis("x", 3))
	var shapeErr *ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, []int{2, 3}, shapeErr.Want)

	_, err = New(make([]float64, 4), RangeAxis("x", 2), RangeAxis("x", 2))
	assert.Error(t, err)

	_, err = New(make([]float64, 2), NewAxis("channel", "a", "a"))
	assert.Error(t, err)
}

func TestNewCopiesInput(t *testing.T) {
	data := []float64{1, 2, 3}
	a, err := New(data, RangeAxis("x", 3))
	require.NoError(t, err)
	data[0] = 99
	assert.Equal(t, 1.0, a.At(0))

	out := a.Data()
	out[1] = 42
	assert.Equal(t, 2.0, a.At(1))
}

func TestAxisLookup(t *testing.T) {
	a := stack(t)
	assert.Equal(t, 4, a.Rank())
	assert.Equal(t, []int{2, 3, 4, 5}, a.Shape())
	assert.Equal(t, []string{"channel", "time", "y", "x"}, a.AxisNames())

	n, err := a.Len("time")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	p, err := a.Position("channel", "GFP")
	require.NoError(t, err)
	assert.Equal(t, 1, p)

	_, err = a.AxisIndex("position")
	var axisErr *InvalidAxisError
	require.ErrorAs(t, err, &axisErr)
	assert.Equal(t, "position", axisErr.Axis)
	assert.Empty(t, axisErr.Label)

	_, err = a.Position("channel", "RFP")
	require.ErrorAs(t, err, &axisErr)
	assert.Equal(t, "RFP", axisErr.Label)
	assert.Equal(t, []string{"DAPI", "GFP"}, axisErr.Available)
}

func TestSelectDropsAxis(t *testing.T) {
	a := stack(t)
	gfp, err := a.Select("channel", "GFP")
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "y", "x"}, gfp.AxisNames())
	assert.Equal(t, 1000.0+2*100+3*10+4, gfp.At(2, 3, 4))

	frame, err := gfp.SelectIndex("time", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, frame.Shape())
	assert.Equal(t, 1123.0, frame.At(2, 3))

	_, err = a.Select("channel", "RFP")
	var axisErr *InvalidAxisError
	assert.True(t, errors.As(err, &axisErr))

	_, err = a.SelectIndex("time", 3)
	assert.True(t, errors.As(err, &axisErr))
}

func TestSubFixesSeveralAxes(t *testing.T) {
	a := stack(t)
	s, err := a.Sub(Index{{Axis: "time", Pos: 2}, {Axis: "channel", Label: "DAPI"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, s.AxisNames())
	assert.Equal(t, 213.0, s.At(1, 3))
}

func TestRangeKeepsAxis(t *testing.T) {
	a := stack(t)
	r, err := a.Range("x", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 2}, r.Shape())
	ax, err := r.Axis("x")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ax.Labels)
	assert.Equal(t, 1000.0+100+20+2, r.At(1, 1, 2, 1))

	_, err = a.Range("x", 3, 3)
	assert.Error(t, err)
}

func TestIterRowMajor(t *testing.T) {
	a := stack(t)
	frames, err := a.Iter("y", "x")
	require.NoError(t, err)
	require.Len(t, frames, 6)
	assert.Equal(t, "[channel=DAPI time=0]", frames[0].String())
	assert.Equal(t, "[channel=DAPI time=1]", frames[1].String())
	assert.Equal(t, "[channel=GFP time=2]", frames[5].String())

	pos, ok := frames[4].Pos("time")
	assert.True(t, ok)
	assert.Equal(t, 1, pos)

	all, err := a.Iter("channel", "time", "y", "x")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Empty(t, all[0])
}

func TestPlaneAndMatrixOrientation(t *testing.T) {
	a := stack(t)
	ix := Index{{Axis: "channel", Pos: 1}, {Axis: "time", Pos: 0}}
	p, err := a.Plane(ix, "y", "x")
	require.NoError(t, err)
	r, c := p.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 1032.0, p.At(3, 2))

	tp, err := a.Plane(ix, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 1032.0, tp.At(2, 3))

	_, err = a.Plane(Index{{Axis: "channel", Pos: 1}}, "y", "x")
	assert.Error(t, err)

	_, err = a.Matrix("y", "x")
	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestFromMatrixRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	a, err := FromMatrix(m, RangeAxis("y", 2), RangeAxis("x", 3))
	require.NoError(t, err)
	assert.Equal(t, 6.0, a.At(1, 2))

	back, err := a.Matrix("y", "x")
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, back))

	_, err = FromMatrix(m, RangeAxis("y", 3), RangeAxis("x", 3))
	assert.Error(t, err)
}

func TestMapPlanesLeavesReceiverUntouched(t *testing.T) {
	a := stack(t)
	doubled, err := a.MapPlanes("y", "x", func(ix Index, plane *mat.Dense) (*mat.Dense, error) {
		plane.Scale(2, plane)
		return plane, nil
	})
	require.NoError(t, err)
	assert.Equal(t, a.AxisNames(), doubled.AxisNames())
	assert.Equal(t, 2*a.At(1, 2, 3, 4), doubled.At(1, 2, 3, 4))
	assert.Equal(t, 1234.0, a.At(1, 2, 3, 4))

	_, err = a.MapPlanes("y", "x", func(ix Index, plane *mat.Dense) (*mat.Dense, error) {
		return mat.NewDense(1, 1, nil), nil
	})
	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestStack(t *testing.T) {
	f0, err := New([]float64{1, 2}, RangeAxis("x", 2))
	require.NoError(t, err)
	f1, err := New([]float64{3, 4}, RangeAxis("x", 2))
	require.NoError(t, err)

	s, err := Stack(RangeAxis("time", 2), f0, f1)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "x"}, s.AxisNames())
	assert.Equal(t, 3.0, s.At(1, 0))

	odd, err := New([]float64{1, 2, 3}, RangeAxis("x", 3))
	require.NoError(t, err)
	_, err = Stack(RangeAxis("time", 2), f0, odd)
	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestMapAndExtrema(t *testing.T) {
	a, err := New([]float64{-1, 4, 2}, RangeAxis("x", 3))
	require.NoError(t, err)
	assert.Equal(t, -1.0, a.Min())
	assert.Equal(t, 4.0, a.Max())

	sq := a.Map(func(v float64) float64 { return v * v })
	assert.Equal(t, []float64{1, 16, 4}, sq.Data())
	assert.Equal(t, []float64{-1, 4, 2}, a.Data())

	_, err = a.WithData([]float64{1})
	assert.Error(t, err)
}
