package tree

import "github.com/cockroachdb/errors"

type frame struct {
	node        *node
	checkBounds bool
}

// KNearest returns up to k stored points nearest to coords, nearest first.
// An empty tree or k <= 0 yields an empty result.
func (t *Tree[T]) KNearest(coords []float32, k int) ([]Neighbor[T], error) {
	if k <= 0 || t.IsEmpty() {
		return nil, nil
	}
	if len(coords) != t.dims {
		return nil, errors.Wrapf(ErrDimensionMismatch, "query has %d coordinates, want %d", len(coords), t.dims)
	}
	found := NewCandidates[point](k)
	search(t.root, coords, found)
	points := found.Results()
	dists := found.Distances()
	result := make([]Neighbor[T], len(points))
	for i, p := range points {
		result[i] = Neighbor[T]{
			Value:    t.values.value(p.index),
			Coords:   p.coords,
			Distance: dists[i],
		}
	}
	return result, nil
}

// Nearest returns the single nearest point; ok is false on an empty tree.
func (t *Tree[T]) Nearest(coords []float32) (n Neighbor[T], ok bool, err error) {
	result, err := t.KNearest(coords, 1)
	if err != nil || len(result) == 0 {
		return n, false, err
	}
	return result[0], true, nil
}

// search runs a depth-first branch-and-bound traversal. The near child is
// pushed last so it is explored first; the far child is only expanded when
// its box may still hold a point closer than the current worst candidate.
func search(root *node, q []float32, found *Candidates[point]) {
	stack := make([]frame, 0, 32)
	if !root.box.empty() {
		stack = append(stack, frame{node: root})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.checkBounds && found.Full() {
			if _, worst, _ := found.Worst(); f.node.box.minDistSq(q) > worst {
				continue
			}
		}
		switch s := f.node.state.(type) {
		case *branch:
			near, far := s.left, s.right
			if float64(q[s.dim]) > s.split {
				near, far = far, near
			}
			if !far.box.empty() {
				stack = append(stack, frame{node: far, checkBounds: true})
			}
			if !near.box.empty() {
				stack = append(stack, frame{node: near})
			}
		case *leaf:
			s.scan(q, found)
		}
	}
}
