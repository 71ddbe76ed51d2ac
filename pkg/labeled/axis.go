package labeled

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis names one dimension of an Array and carries one coordinate label per
// position along it.
type Axis struct {
	Name   string
	Labels []string
}

// NewAxis returns an axis with the given coordinate labels.
func NewAxis(name string, labels ...string) Axis {
	return Axis{Name: name, Labels: append([]string(nil), labels...)}
}

// RangeAxis returns an axis of length n labelled "0", "1", ... "n-1".
func RangeAxis(name string, n int) Axis {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return Axis{Name: name, Labels: labels}
}

// Len returns the number of positions along the axis.
func (a Axis) Len() int { return len(a.Labels) }

// Position returns the position of label along the axis, or -1.
func (a Axis) Position(label string) int {
	for i, l := range a.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

func (a Axis) clone() Axis {
	return Axis{Name: a.Name, Labels: append([]string(nil), a.Labels...)}
}

// Selector picks one coordinate along one named axis. The zero Selector
// selects nothing in particular.
type Selector struct {
	Axis  string
	Label string
}

// IsZero reports whether s is the zero Selector.
func (s Selector) IsZero() bool { return s.Axis == "" }

func (s Selector) String() string {
	if s.IsZero() {
		return "<all>"
	}
	return s.Axis + "=" + s.Label
}

// Coord is a single position along a named axis.
type Coord struct {
	Axis  string
	Pos   int
	Label string
}

// Index locates a position along each of a set of axes. Iter produces
// Index values in row-major order of the enumerated axes.
type Index []Coord

// Pos returns the position along axis, if ix constrains it.
func (ix Index) Pos(axis string) (int, bool) {
	for _, c := range ix {
		if c.Axis == axis {
			return c.Pos, true
		}
	}
	return 0, false
}

// Label returns the coordinate label along axis, if ix constrains it.
func (ix Index) Label(axis string) (string, bool) {
	for _, c := range ix {
		if c.Axis == axis {
			return c.Label, true
		}
	}
	return "", false
}

func (ix Index) String() string {
	if len(ix) == 0 {
		return "[]"
	}
	parts := make([]string, len(ix))
	for i, c := range ix {
		parts[i] = fmt.Sprintf("%s=%s", c.Axis, c.Label)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
