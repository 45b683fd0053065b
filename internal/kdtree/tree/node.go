package tree

import "slices"

// node is a subtree root. Its state is a *leaf until the bucket is split,
// then a *branch for the rest of its life.
type node struct {
	box   bounds
	state nodeState
}

type nodeState interface {
	isNodeState()
}

// leaf is a bucket of points with one-pass (Welford) statistics.
type leaf struct {
	points []point
	// mean and sumSqDev are per-dimension running mean and sum of squared
	// deviations from it.
	mean     []float64
	sumSqDev []float64
	// singular holds while every point equals the first one.
	singular bool
}

// branch routes coords[dim] <= split to left and everything else to right.
type branch struct {
	dim   int
	split float64
	left  *node
	right *node
}

func (*leaf) isNodeState()   {}
func (*branch) isNodeState() {}

func newNode() *node {
	return &node{state: &leaf{singular: true}}
}

func (n *node) isLeaf() bool {
	_, ok := n.state.(*leaf)
	return ok
}

func (b *branch) child(coords []float32) *node {
	if float64(coords[b.dim]) <= b.split {
		return b.left
	}
	return b.right
}

func (l *leaf) add(p point) {
	l.points = append(l.points, p)
	n := len(l.points)
	if n == 1 {
		l.mean = make([]float64, len(p.coords))
		l.sumSqDev = make([]float64, len(p.coords))
		for d, v := range p.coords {
			l.mean[d] = float64(v)
		}
		return
	}
	for d, v := range p.coords {
		x := float64(v)
		oldMean := l.mean[d]
		newMean := oldMean + (x-oldMean)/float64(n)
		l.mean[d] = newMean
		l.sumSqDev[d] += (x - oldMean) * (x - newMean)
	}
	if l.singular && !slices.Equal(p.coords, l.points[0].coords) {
		l.singular = false
	}
}

func (l *leaf) shouldSplit(bucketSize int) bool {
	return len(l.points) > bucketSize && !l.singular
}

// widestDim returns the dimension with the largest sum of squared
// deviations; ties resolve to the lowest index.
func (l *leaf) widestDim() int {
	dim := 0
	for d := 1; d < len(l.sumSqDev); d++ {
		if l.sumSqDev[d] > l.sumSqDev[dim] {
			dim = d
		}
	}
	return dim
}

// scan offers every point of the leaf to found.
func (l *leaf) scan(q []float32, found *Candidates[point]) {
	var dist float64
	for i, p := range l.points {
		if !l.singular || i == 0 {
			dist = distSq(q, p.coords)
		}
		if !found.Full() {
			found.Offer(p, dist)
			continue
		}
		if _, worst, _ := found.Worst(); dist < worst {
			found.Offer(p, dist)
		}
	}
}

func partition(points []point, dim int, threshold float64) (left, right []point) {
	for _, p := range points {
		if float64(p.coords[dim]) <= threshold {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	return left, right
}
