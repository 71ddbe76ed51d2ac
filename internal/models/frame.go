package models

import (
	"sort"
	"strconv"
)

// Frame represents a single acquired image file with its acquisition
// coordinates
type Frame struct {
	// Filename is the base name of the file
	Filename string

	// Position is the stage position (field of view) label
	Position string

	// Channel is the imaging channel label, e.g. DAPI
	Channel string

	// Time is the timepoint number parsed from the filename
	Time int
}

// Acquisition represents every frame of one experiment directory
type Acquisition struct {
	// Dir is the directory the frames were found in
	Dir string

	// Frames are ordered by position, channel and time
	Frames []Frame

	// Positions, Channels and Times list the distinct coordinates in order
	Positions []string
	Channels  []string
	Times     []int

	// Width and Height are the frame dimensions once loaded
	Width  int
	Height int
}

// NewAcquisition orders frames and collects their distinct coordinates.
// Positions and channels sort lexically, times numerically.
func NewAcquisition(dir string, frames []Frame) *Acquisition {
	sort.Slice(frames, func(i, j int) bool {
		a, b := frames[i], frames[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Time < b.Time
	})

	acq := &Acquisition{Dir: dir, Frames: frames}
	positions := map[string]bool{}
	channels := map[string]bool{}
	times := map[int]bool{}
	for _, f := range frames {
		if !positions[f.Position] {
			positions[f.Position] = true
			acq.Positions = append(acq.Positions, f.Position)
		}
		if !channels[f.Channel] {
			channels[f.Channel] = true
			acq.Channels = append(acq.Channels, f.Channel)
		}
		if !times[f.Time] {
			times[f.Time] = true
			acq.Times = append(acq.Times, f.Time)
		}
	}
	sort.Strings(acq.Channels)
	sort.Ints(acq.Times)
	return acq
}

// TimeLabels returns the timepoints as axis labels
func (a *Acquisition) TimeLabels() []string {
	labels := make([]string, len(a.Times))
	for i, t := range a.Times {
		labels[i] = strconv.Itoa(t)
	}
	return labels
}

// Complete reports whether every (position, channel, time) combination has
// exactly one frame
func (a *Acquisition) Complete() bool {
	return len(a.Frames) == len(a.Positions)*len(a.Channels)*len(a.Times)
}
