package tree

import (
	"math/rand/v2"

	"github.com/cockroachdb/errors"
)

// autoSplitAttempts scales the randomized retry budget by dims*points when no
// explicit limit is configured. Each attempt succeeds with probability at
// least 1/(dims*points) on a non-singular leaf.
const autoSplitAttempts = 32

// builder carries the per-tree settings every node of the tree shares.
type builder struct {
	bucketSize       int
	maxSplitAttempts int
	rng              *rand.Rand
}

// addAll inserts points below root, then splits every distinct leaf the
// points landed in that has outgrown the bucket.
func (b *builder) addAll(root *node, points []point) error {
	touched := make([]*node, 0, 1)
	seen := make(map[*node]struct{})
	for _, p := range points {
		n, err := b.addNoSplit(root, p)
		if err != nil {
			return err
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			touched = append(touched, n)
		}
	}
	for _, n := range touched {
		l, ok := n.state.(*leaf)
		if !ok || !l.shouldSplit(b.bucketSize) {
			continue
		}
		if err := b.split(n); err != nil {
			return err
		}
	}
	return nil
}

// addNoSplit walks from root to the leaf owning p, widening every box on the
// way, and appends p to that leaf.
func (b *builder) addNoSplit(root *node, p point) (*node, error) {
	for cursor := root; cursor != nil; {
		cursor.box.extend(p.coords)
		switch s := cursor.state.(type) {
		case *branch:
			cursor = s.child(p.coords)
		case *leaf:
			s.add(p)
			return cursor, nil
		default:
			return nil, errors.AssertionFailedf("kdtree: unexpected node state %T", cursor.state)
		}
	}
	return nil, errors.AssertionFailedf("kdtree: walked tree without reaching a leaf")
}

// split turns the leaf n into a branch with two freshly built children.
// n is left untouched when building the children fails.
func (b *builder) split(n *node) error {
	l, ok := n.state.(*leaf)
	if !ok {
		return errors.AssertionFailedf("kdtree: split of a branch node")
	}
	if l.singular {
		return errors.AssertionFailedf("kdtree: cannot split singular leaf of %d points", len(l.points))
	}
	dim := l.widestDim()
	threshold := l.mean[dim]
	left, right := partition(l.points, dim, threshold)
	if len(left) == 0 || len(right) == 0 {
		var err error
		if dim, threshold, left, right, err = b.randomSplit(l); err != nil {
			return err
		}
	}
	leftNode, rightNode := newNode(), newNode()
	if err := b.addAll(leftNode, left); err != nil {
		return err
	}
	if err := b.addAll(rightNode, right); err != nil {
		return err
	}
	n.state = &branch{dim: dim, split: threshold, left: leftNode, right: rightNode}
	return nil
}

// randomSplit draws a random dimension and uses the coordinate of a random
// leaf point on it as threshold until both sides are non-empty.
func (b *builder) randomSplit(l *leaf) (int, float64, []point, []point, error) {
	dims := len(l.mean)
	limit := b.maxSplitAttempts
	if limit <= 0 {
		limit = autoSplitAttempts * dims * len(l.points)
	}
	for attempt := 0; attempt < limit; attempt++ {
		dim := b.rng.IntN(dims)
		threshold := float64(l.points[b.rng.IntN(len(l.points))].coords[dim])
		left, right := partition(l.points, dim, threshold)
		if len(left) > 0 && len(right) > 0 {
			return dim, threshold, left, right, nil
		}
	}
	return 0, 0, nil, nil, errors.Wrapf(ErrSplitFailure, "%d points, %d attempts", len(l.points), limit)
}
