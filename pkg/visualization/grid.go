package visualization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/labeled"
	"cellseg/pkg/segmentation"
)

// ErrNoDetections is returned when a grid is requested for no cells.
var ErrNoDetections = errors.New("visualization: no detections to tile")

// GridParams configures CellGrid.
type GridParams struct {
	ChannelAxis  string
	TimeAxis     string
	PositionAxis string
	RowAxis      string
	ColAxis      string

	// Channel is the channel label the crops are taken from.
	Channel string

	// Window is the half-size of every crop; tiles are 2*Window+1 pixels
	// square.
	Window int

	// Columns is the number of tiles per grid row. Zero picks a near-square
	// layout.
	Columns int
}

// DefaultGridParams returns parameters for the standard acquisition axes.
func DefaultGridParams() GridParams {
	return GridParams{
		ChannelAxis:  "channel",
		TimeAxis:     "time",
		PositionAxis: "position",
		RowAxis:      "y",
		ColAxis:      "x",
		Window:       15,
	}
}

// Crop returns the (2*window+1)-square region of plane centered on (row,
// col). Pixels outside plane are zero.
func Crop(plane mat.Matrix, row, col, window int) *mat.Dense {
	side := 2*window + 1
	rows, cols := plane.Dims()
	out := mat.NewDense(side, side, nil)
	for r := 0; r < side; r++ {
		sr := row - window + r
		if sr < 0 || sr >= rows {
			continue
		}
		for c := 0; c < side; c++ {
			sc := col - window + c
			if sc < 0 || sc >= cols {
				continue
			}
			out.Set(r, c, plane.At(sr, sc))
		}
	}
	return out
}

// CellGrid tiles a crop of img around every detection into a single plane,
// in detection order, filling grid rows left to right.
func CellGrid(img *labeled.Array, dets []segmentation.Detection, p GridParams) (*mat.Dense, error) {
	if len(dets) == 0 {
		return nil, ErrNoDetections
	}
	if p.Window < 0 {
		return nil, fmt.Errorf("visualization: negative window %d", p.Window)
	}

	columns := p.Columns
	if columns <= 0 {
		columns = int(math.Ceil(math.Sqrt(float64(len(dets)))))
	}
	gridRows := (len(dets) + columns - 1) / columns
	side := 2*p.Window + 1
	out := mat.NewDense(gridRows*side, columns*side, nil)

	planes := make(map[planeKey]*mat.Dense)
	for i, det := range dets {
		ix, key, err := p.index(img, det)
		if err != nil {
			return nil, err
		}
		plane, ok := planes[key]
		if !ok {
			if plane, err = img.Plane(ix, p.RowAxis, p.ColAxis); err != nil {
				return nil, fmt.Errorf("detection %d: %w", i, err)
			}
			planes[key] = plane
		}

		crop := Crop(plane, int(math.Round(det.Y)), int(math.Round(det.X)), p.Window)
		r0, c0 := (i/columns)*side, (i%columns)*side
		out.Slice(r0, r0+side, c0, c0+side).(*mat.Dense).Copy(crop)
	}
	return out, nil
}

// planeKey identifies a plane by element positions; -1 marks an absent axis.
type planeKey struct {
	channel, time, position int
}

// index locates the plane a detection was measured in.
func (p GridParams) index(img *labeled.Array, det segmentation.Detection) (labeled.Index, planeKey, error) {
	key := planeKey{channel: -1, time: -1, position: -1}
	var ix labeled.Index
	if img.HasAxis(p.ChannelAxis) {
		pos, err := img.Position(p.ChannelAxis, p.Channel)
		if err != nil {
			return nil, key, err
		}
		key.channel = pos
		ix = append(ix, labeled.Coord{Axis: p.ChannelAxis, Pos: pos})
	}
	if img.HasAxis(p.TimeAxis) {
		key.time = det.Frame
		ix = append(ix, labeled.Coord{Axis: p.TimeAxis, Pos: det.Frame})
	}
	if img.HasAxis(p.PositionAxis) {
		if det.Position == "" {
			return nil, key, fmt.Errorf("visualization: detection in frame %d has no position", det.Frame)
		}
		pos, err := img.Position(p.PositionAxis, det.Position)
		if err != nil {
			return nil, key, err
		}
		key.position = pos
		ix = append(ix, labeled.Coord{Axis: p.PositionAxis, Pos: pos})
	}
	return ix, key, nil
}
