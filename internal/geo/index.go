package geo

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	// ErrNoWaterfront is returned when an index is built over an empty reference set.
	ErrNoWaterfront = errors.New("reference set has no waterfront points")
	// ErrInvalidPoint is returned for points with missing or infinite coordinates.
	ErrInvalidPoint = errors.New("point has missing or infinite coordinates")
)

// Index answers nearest-reference queries over a fixed reference set.
// Implementations are safe for concurrent queries once built.
type Index interface {
	// Nearest returns the distance from p to the closest reference point.
	Nearest(p Point) (float64, error)
	// Len returns the size of the reference set.
	Len() int
}

// Index kinds accepted by NewIndex.
const (
	IndexKDTree = "kdtree"
	IndexBrute  = "brute"
)

// NewIndex builds the named index kind over refs.
func NewIndex(kind string, refs []Point, proj Projection) (Index, error) {
	switch kind {
	case "", IndexKDTree:
		return NewKDTree(refs, proj)
	case IndexBrute:
		return NewBruteForce(refs, proj)
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}

// BruteForce scans every reference point for each query.
type BruteForce struct {
	refs []Point
	proj Projection
}

// NewBruteForce creates a scanning index. refs is copied.
func NewBruteForce(refs []Point, proj Projection) (*BruteForce, error) {
	if err := checkRefs(refs); err != nil {
		return nil, err
	}
	return &BruteForce{refs: slices.Clone(refs), proj: proj}, nil
}

// Len implements Index.
func (b *BruteForce) Len() int { return len(b.refs) }

// Nearest implements Index.
func (b *BruteForce) Nearest(p Point) (float64, error) {
	if !valid(p) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPoint, p)
	}
	best := math.Inf(1)
	for _, r := range b.refs {
		if d := b.proj.Distance(p, r); d < best {
			best = d
		}
	}
	return best, nil
}

// KDTree is an exact nearest-reference index. Each node keeps the bounding
// box of its subtree and a query skips any subtree whose projection lower
// bound already exceeds the best distance found.
type KDTree struct {
	root *kdNode
	size int
	proj Projection
}

type kdNode struct {
	point       Point
	box         Box
	left, right *kdNode
}

// NewKDTree builds a tree over refs, alternating the split between longitude
// and latitude at each level.
func NewKDTree(refs []Point, proj Projection) (*KDTree, error) {
	if err := checkRefs(refs); err != nil {
		return nil, err
	}
	return &KDTree{
		root: buildKD(slices.Clone(refs), 0),
		size: len(refs),
		proj: proj,
	}, nil
}

func buildKD(pts []Point, depth int) *kdNode {
	if len(pts) == 0 {
		return nil
	}
	byLong := depth%2 == 0
	sort.Slice(pts, func(i, j int) bool {
		if byLong {
			return pts[i].Long < pts[j].Long
		}
		return pts[i].Lat < pts[j].Lat
	})
	mid := len(pts) / 2
	return &kdNode{
		point: pts[mid],
		box:   Bounds(pts),
		left:  buildKD(pts[:mid], depth+1),
		right: buildKD(pts[mid+1:], depth+1),
	}
}

// Len implements Index.
func (t *KDTree) Len() int { return t.size }

// Nearest implements Index.
func (t *KDTree) Nearest(p Point) (float64, error) {
	if !valid(p) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPoint, p)
	}
	return t.search(t.root, p, math.Inf(1)), nil
}

func (t *KDTree) search(n *kdNode, p Point, best float64) float64 {
	if n == nil || t.proj.LowerBound(p, n.box) > best {
		return best
	}
	if d := t.proj.Distance(p, n.point); d < best {
		best = d
	}

	near, far := n.left, n.right
	if near == nil || (far != nil && t.proj.LowerBound(p, far.box) < t.proj.LowerBound(p, near.box)) {
		near, far = far, near
	}
	best = t.search(near, p, best)
	return t.search(far, p, best)
}

func checkRefs(refs []Point) error {
	if len(refs) == 0 {
		return ErrNoWaterfront
	}
	for i, r := range refs {
		if !valid(r) {
			return fmt.Errorf("reference %d: %w: %v", i, ErrInvalidPoint, r)
		}
	}
	return nil
}

func valid(p Point) bool {
	return !math.IsNaN(p.Long) && !math.IsNaN(p.Lat) &&
		!math.IsInf(p.Long, 0) && !math.IsInf(p.Lat, 0)
}
