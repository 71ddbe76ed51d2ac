package segmentation

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"cellseg/internal/spatial"
)

// Seed is a candidate cell center found in the seed channel.
type Seed struct {
	Row, Col int
	Value    float64
}

// FindSeeds returns the local maxima of plane strictly above floor, in
// processing order: brightest first, ties broken by row then column. A
// candidate closer than minSeparation to an already accepted seed is
// dropped, which also collapses flat-topped maxima to a single seed.
func FindSeeds(plane *mat.Dense, floor, minSeparation float64) []Seed {
	rows, cols := plane.Dims()
	var candidates []Seed
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := plane.At(r, c)
			if !(v > floor) {
				continue
			}
			if isLocalMax(plane, r, c, v) {
				candidates = append(candidates, Seed{Row: r, Col: c, Value: v})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})

	if minSeparation <= 0 {
		return candidates
	}

	var accepted spatial.Tree
	seeds := candidates[:0]
	for _, s := range candidates {
		p := spatial.Point{Row: float64(s.Row), Col: float64(s.Col)}
		if _, d := accepted.Nearest(p); d < minSeparation {
			continue
		}
		accepted.Insert(p)
		seeds = append(seeds, s)
	}
	return seeds
}

func isLocalMax(plane *mat.Dense, r, c int, v float64) bool {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if n, ok := at(plane, r+dr, c+dc); ok && n > v {
				return false
			}
		}
	}
	return true
}
