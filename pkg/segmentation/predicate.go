package segmentation

import "gonum.org/v1/gonum/mat"

// Neighborhood gives an AdmissionPredicate read access to the pixel under
// consideration and its surroundings in every channel of the frame.
type Neighborhood struct {
	// Row and Col locate the candidate pixel.
	Row, Col int

	segment  *mat.Dense
	channels map[string]*mat.Dense
}

// Value returns the segment-channel value of the candidate pixel.
func (n Neighborhood) Value() float64 {
	return n.segment.At(n.Row, n.Col)
}

// At returns the segment-channel value at offset (dr, dc) from the
// candidate pixel. ok is false outside the frame.
func (n Neighborhood) At(dr, dc int) (v float64, ok bool) {
	return at(n.segment, n.Row+dr, n.Col+dc)
}

// Channel returns the value of the named channel at offset (dr, dc) from the
// candidate pixel. ok is false for unknown channels and outside the frame.
func (n Neighborhood) Channel(name string, dr, dc int) (v float64, ok bool) {
	m, found := n.channels[name]
	if !found {
		return 0, false
	}
	return at(m, n.Row+dr, n.Col+dc)
}

func at(m *mat.Dense, r, c int) (float64, bool) {
	rows, cols := m.Dims()
	if r < 0 || c < 0 || r >= rows || c >= cols {
		return 0, false
	}
	return m.At(r, c), true
}

// AdmissionPredicate decides whether a pixel may join a growing region.
type AdmissionPredicate interface {
	Admit(n Neighborhood) bool
}

// PredicateFunc adapts an ordinary function to AdmissionPredicate.
type PredicateFunc func(n Neighborhood) bool

// Admit calls f(n).
func (f PredicateFunc) Admit(n Neighborhood) bool { return f(n) }

// Threshold admits pixels whose segment-channel value is at least Min.
type Threshold struct {
	Min float64
}

func (t Threshold) Admit(n Neighborhood) bool { return n.Value() >= t.Min }

// WindowMean admits pixels whose segment-channel mean over the
// (2·Radius+1)² window, clipped to the frame, is at least Min.
type WindowMean struct {
	Radius int
	Min    float64
}

func (w WindowMean) Admit(n Neighborhood) bool {
	var sum float64
	var count int
	for dr := -w.Radius; dr <= w.Radius; dr++ {
		for dc := -w.Radius; dc <= w.Radius; dc++ {
			if v, ok := n.At(dr, dc); ok {
				sum += v
				count++
			}
		}
	}
	return count > 0 && sum/float64(count) >= w.Min
}

// ChannelThreshold admits pixels whose value in Channel is at least Min.
// Unknown channels admit nothing.
type ChannelThreshold struct {
	Channel string
	Min     float64
}

func (t ChannelThreshold) Admit(n Neighborhood) bool {
	v, ok := n.Channel(t.Channel, 0, 0)
	return ok && v >= t.Min
}

// All admits a pixel when every predicate does. An empty All admits
// everything.
type All []AdmissionPredicate

func (a All) Admit(n Neighborhood) bool {
	for _, p := range a {
		if !p.Admit(n) {
			return false
		}
	}
	return true
}

// Any admits a pixel when at least one predicate does.
type Any []AdmissionPredicate

func (a Any) Admit(n Neighborhood) bool {
	for _, p := range a {
		if p.Admit(n) {
			return true
		}
	}
	return false
}
