package segmentation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"cellseg/pkg/labeled"
)

// Detection is one labelled cell in one frame. Labels identify cells within
// a frame only; linking detections across frames is left to a tracker.
type Detection struct {
	Frame    int    `json:"frame"`
	Position string `json:"position,omitempty"`
	Label    int    `json:"label"`

	// X and Y are the centroid in column and row pixel coordinates.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Signal is the mean of the signal channel over the cell and Median its
	// median.
	Signal float64 `json:"signal"`
	Median float64 `json:"median"`

	Area int `json:"area"`
}

// Detections flattens masks into one row per (frame, label), measuring the
// signal channel of img under every cell. Rows are ordered by mask, then
// label. Frame is the time coordinate of the mask; without a time axis it is
// the ordinal of the mask among the masks of the same position.
func (s *Segmenter) Detections(img *labeled.Array, masks []*Mask, signalChannel string) ([]Detection, error) {
	if _, err := img.Position(s.params.ChannelAxis, signalChannel); err != nil {
		return nil, err
	}

	var out []Detection
	ordinals := make(map[string]int)
	for _, m := range masks {
		sel := append(append(labeled.Index(nil), m.Index...), labeled.Coord{Axis: s.params.ChannelAxis, Label: signalChannel})
		plane, err := img.Plane(sel, s.params.RowAxis, s.params.ColAxis)
		if err != nil {
			return nil, fmt.Errorf("frame %v: %w", m.Index, err)
		}
		if r, c := plane.Dims(); r != m.Rows || c != m.Cols {
			return nil, &labeled.ShapeMismatchError{Op: fmt.Sprintf("detections frame %v", m.Index), Want: []int{m.Rows, m.Cols}, Got: []int{r, c}}
		}

		position, _ := m.Index.Label(s.params.PositionAxis)
		frame := ordinals[position]
		ordinals[position]++
		if t, ok := m.Index.Pos(s.params.TimeAxis); ok {
			frame = t
		}

		values := make([][]float64, m.Count+1)
		sumRow := make([]float64, m.Count+1)
		sumCol := make([]float64, m.Count+1)
		for p, l := range m.Labels {
			if l == 0 {
				continue
			}
			r, c := p/m.Cols, p%m.Cols
			values[l] = append(values[l], plane.At(r, c))
			sumRow[l] += float64(r)
			sumCol[l] += float64(c)
		}

		for l := 1; l <= m.Count; l++ {
			v := values[l]
			if len(v) == 0 {
				continue
			}
			n := float64(len(v))
			mean := stat.Mean(v, nil)
			sort.Float64s(v)
			out = append(out, Detection{
				Frame:    frame,
				Position: position,
				Label:    l,
				X:        sumCol[l] / n,
				Y:        sumRow[l] / n,
				Signal:   mean,
				Median:   stat.Quantile(0.5, stat.Empirical, v, nil),
				Area:     len(v),
			})
		}
	}
	return out, nil
}
