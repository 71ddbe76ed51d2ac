package labeled

import (
	"fmt"
	"strings"
)

// InvalidAxisError reports a reference to an axis, or a coordinate along an
// axis, that the array does not have.
type InvalidAxisError struct {
	// Axis is the axis name that was requested.
	Axis string

	// Label is the coordinate that was requested along Axis. It is empty when
	// the axis itself is missing.
	Label string

	// Available lists what could have been asked for instead: axis names
	// when the axis is missing, coordinate labels otherwise.
	Available []string
}

func (e *InvalidAxisError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("axis %q has no coordinate %q (have %s)", e.Axis, e.Label, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("no axis named %q (have %s)", e.Axis, strings.Join(e.Available, ", "))
}

// ShapeMismatchError reports arrays or buffers whose shapes are incompatible
// with the requested operation.
type ShapeMismatchError struct {
	Op   string
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
}
