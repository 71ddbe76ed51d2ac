// Package segmentation detects cells in multi-channel microscopy frames by
// growing regions from seed points.
//
// Seeds come from local maxima of a seed channel (typically a nuclear
// marker). Every seed then grows through the segment channel (typically a
// cytoplasmic marker) one ring of neighbours at a time, admitting pixels
// that an AdmissionPredicate accepts. All seeds grow together from a single
// label arena, so a pixel belongs to whichever front reaches it first; fronts
// that reach it in the same step are ordered by seed order.
package segmentation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/labeled"
)

// Connectivity selects the neighbours a region grows into.
type Connectivity int

const (
	Four  Connectivity = 4
	Eight Connectivity = 8
)

var (
	fourOffsets  = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	eightOffsets = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

func (c Connectivity) offsets() ([][2]int, error) {
	switch c {
	case Four:
		return fourOffsets, nil
	case Eight:
		return eightOffsets, nil
	default:
		return nil, fmt.Errorf("segmentation: connectivity must be 4 or 8, got %d", int(c))
	}
}

// Params configures a Segmenter.
type Params struct {
	// ChannelAxis, RowAxis and ColAxis name the channel and spatial axes of
	// the input image.
	ChannelAxis string
	RowAxis     string
	ColAxis     string

	// TimeAxis and PositionAxis name the axes reported in detections.
	// Either may be absent from the image.
	TimeAxis     string
	PositionAxis string

	Connectivity Connectivity

	// IntensityFloor is the seed-channel value a seed must exceed.
	IntensityFloor float64

	// MinSeparation is the smallest distance in pixels between two seeds.
	MinSeparation float64

	// MinArea discards regions with fewer pixels.
	MinArea int

	// MaxDistance caps how far in pixels a region may grow from its seed.
	// Zero means unlimited.
	MaxDistance float64
}

// DefaultParams returns parameters for channel/y/x images with
// 8-connected growth and no area or reach limit.
func DefaultParams() Params {
	return Params{
		ChannelAxis:   "channel",
		RowAxis:       "y",
		ColAxis:       "x",
		TimeAxis:      "time",
		PositionAxis:  "position",
		Connectivity:  Eight,
		MinSeparation: 2,
	}
}

// Segmenter performs seeded region growing. It holds no per-call state and
// is safe for concurrent use.
type Segmenter struct {
	params Params
}

// NewSegmenter creates a new segmenter with the provided parameters.
func NewSegmenter(params Params) *Segmenter {
	return &Segmenter{params: params}
}

// Params returns the segmenter's configuration.
func (s *Segmenter) Params() Params { return s.params }

// Frames lists the frames of img: every combination of the axes other than
// the channel and spatial axes, in row-major order.
func (s *Segmenter) Frames(img *labeled.Array) ([]labeled.Index, error) {
	return img.Iter(s.params.ChannelAxis, s.params.RowAxis, s.params.ColAxis)
}

// Segment labels every frame of img. The returned masks follow the order
// of Frames.
func (s *Segmenter) Segment(img *labeled.Array, seedChannel, segmentChannel string, pred AdmissionPredicate) ([]*Mask, error) {
	frames, err := s.Frames(img)
	if err != nil {
		return nil, err
	}
	masks := make([]*Mask, len(frames))
	for i, ix := range frames {
		m, err := s.SegmentFrame(img, ix, seedChannel, segmentChannel, pred)
		if err != nil {
			return nil, fmt.Errorf("frame %v: %w", ix, err)
		}
		masks[i] = m
	}
	return masks, nil
}

// SegmentSequence labels separately loaded frames, each holding the
// channel and spatial axes only. The frames are stacked along the time
// axis, so the masks carry their sequence position as the time coordinate.
func (s *Segmenter) SegmentSequence(frames []*labeled.Array, seedChannel, segmentChannel string, pred AdmissionPredicate) ([]*Mask, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	want, err := s.spatialShape(frames[0])
	if err != nil {
		return nil, fmt.Errorf("frame 0: %w", err)
	}
	for i, f := range frames[1:] {
		got, err := s.spatialShape(f)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		if got != want {
			return nil, &labeled.ShapeMismatchError{
				Op:   fmt.Sprintf("segment frame %d", i+1),
				Want: want[:],
				Got:  got[:],
			}
		}
	}
	img, err := labeled.Stack(labeled.RangeAxis(s.params.TimeAxis, len(frames)), frames...)
	if err != nil {
		return nil, err
	}
	return s.Segment(img, seedChannel, segmentChannel, pred)
}

func (s *Segmenter) spatialShape(img *labeled.Array) ([2]int, error) {
	rows, err := img.Len(s.params.RowAxis)
	if err != nil {
		return [2]int{}, err
	}
	cols, err := img.Len(s.params.ColAxis)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{rows, cols}, nil
}

// SegmentFrame labels the single frame of img that ix selects.
func (s *Segmenter) SegmentFrame(img *labeled.Array, ix labeled.Index, seedChannel, segmentChannel string, pred AdmissionPredicate) (*Mask, error) {
	if pred == nil {
		return nil, fmt.Errorf("segmentation: nil admission predicate")
	}
	offsets, err := s.params.Connectivity.offsets()
	if err != nil {
		return nil, err
	}
	channelAxis, err := img.Axis(s.params.ChannelAxis)
	if err != nil {
		return nil, err
	}
	for _, ch := range []string{seedChannel, segmentChannel} {
		if _, err := img.Position(s.params.ChannelAxis, ch); err != nil {
			return nil, err
		}
	}

	channels := make(map[string]*mat.Dense, channelAxis.Len())
	for _, ch := range channelAxis.Labels {
		sel := append(append(labeled.Index(nil), ix...), labeled.Coord{Axis: s.params.ChannelAxis, Label: ch})
		plane, err := img.Plane(sel, s.params.RowAxis, s.params.ColAxis)
		if err != nil {
			return nil, err
		}
		channels[ch] = plane
	}

	seeds := FindSeeds(channels[seedChannel], s.params.IntensityFloor, s.params.MinSeparation)
	mask := s.grow(channels[segmentChannel], channels, seeds, offsets, pred)
	mask.Index = append(labeled.Index(nil), ix...)
	return mask, nil
}

// grow floods outward from every seed at once over a shared label arena.
// The queue starts with the seeds in processing order, so among fronts that
// reach a pixel in the same step the earlier seed claims it.
func (s *Segmenter) grow(segment *mat.Dense, channels map[string]*mat.Dense, seeds []Seed, offsets [][2]int, pred AdmissionPredicate) *Mask {
	rows, cols := segment.Dims()
	owner := make([]int, rows*cols)

	// admissible caches predicate results: 0 unknown, 1 admitted, -1 rejected.
	admissible := make([]int8, rows*cols)

	queue := make([]int, 0, len(seeds))
	for i, sd := range seeds {
		p := sd.Row*cols + sd.Col
		owner[p] = i + 1
		queue = append(queue, p)
	}

	maxDist2 := s.params.MaxDistance * s.params.MaxDistance
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		id := owner[p]
		r, c := p/cols, p%cols
		for _, off := range offsets {
			nr, nc := r+off[0], c+off[1]
			if nr < 0 || nc < 0 || nr >= rows || nc >= cols {
				continue
			}
			q := nr*cols + nc
			if owner[q] != 0 {
				continue
			}
			if s.params.MaxDistance > 0 {
				sd := seeds[id-1]
				dr, dc := float64(nr-sd.Row), float64(nc-sd.Col)
				if dr*dr+dc*dc > maxDist2 {
					continue
				}
			}
			if admissible[q] == 0 {
				admissible[q] = -1
				if pred.Admit(Neighborhood{Row: nr, Col: nc, segment: segment, channels: channels}) {
					admissible[q] = 1
				}
			}
			if admissible[q] < 0 {
				continue
			}
			owner[q] = id
			queue = append(queue, q)
		}
	}

	area := make([]int, len(seeds)+1)
	for _, id := range owner {
		area[id]++
	}

	// Relabel surviving regions 1..K in seed order.
	relabel := make([]int, len(seeds)+1)
	mask := &Mask{Rows: rows, Cols: cols, Labels: owner}
	for i, sd := range seeds {
		if area[i+1] < s.params.MinArea {
			continue
		}
		mask.Count++
		relabel[i+1] = mask.Count
		mask.Seeds = append(mask.Seeds, sd)
	}
	for p, id := range owner {
		owner[p] = relabel[id]
	}
	return mask
}
