// Package spatial wraps gonum's k-d tree for nearest-neighbour queries over
// pixel coordinates.
package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Point is a pixel position in (row, column) coordinates.
type Point struct {
	Row, Col float64
}

// Compare implements the kdtree.Comparable interface
func (p Point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point)
	switch d {
	case 0:
		return p.Row - q.Row
	case 1:
		return p.Col - q.Col
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p Point) Distance(c kdtree.Comparable) float64 {
	q := c.(Point)
	dr := p.Row - q.Row
	dc := p.Col - q.Col
	return dr*dr + dc*dc
}

// Points is a collection of Point that satisfies kdtree.Interface
type Points []Point

func (p Points) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points) Len() int                              { return len(p) }
func (p Points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points
type pointPlane struct {
	Points
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points[i].Row < p.Points[j].Row
	case 1:
		return p.Points[i].Col < p.Points[j].Col
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points: p.Points[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points[i], p.Points[j] = p.Points[j], p.Points[i]
}

// Tree answers nearest-point queries. The zero value is an empty tree.
type Tree struct {
	tree kdtree.Tree
	n    int
}

// NewTree builds a balanced tree over a copy of pts.
func NewTree(pts Points) *Tree {
	t := &Tree{n: len(pts)}
	if len(pts) > 0 {
		t.tree = *kdtree.New(append(Points(nil), pts...), false)
	}
	return t
}

// Insert adds p to the tree.
func (t *Tree) Insert(p Point) {
	t.tree.Insert(p, false)
	t.n++
}

// Len returns the number of points in the tree.
func (t *Tree) Len() int { return t.n }

// Nearest returns the closest point to q and its Euclidean distance. The
// distance is +Inf when the tree is empty.
func (t *Tree) Nearest(q Point) (Point, float64) {
	if t.n == 0 {
		return Point{}, math.Inf(1)
	}
	c, d := t.tree.Nearest(q)
	return c.(Point), math.Sqrt(d)
}
