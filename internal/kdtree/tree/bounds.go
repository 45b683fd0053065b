package tree

import "slices"

// bounds is the axis-aligned box of every point ever added to a subtree.
// It is empty until the first point arrives and only ever grows.
type bounds struct {
	min []float32
	max []float32
}

func (b *bounds) empty() bool { return b.min == nil }

func (b *bounds) extend(coords []float32) {
	if b.min == nil {
		b.min = slices.Clone(coords)
		b.max = slices.Clone(coords)
		return
	}
	for d, v := range coords {
		if v < b.min[d] {
			b.min[d] = v
		}
		if v > b.max[d] {
			b.max[d] = v
		}
	}
}

func (b *bounds) contains(coords []float32) bool {
	if b.min == nil {
		return false
	}
	for d, v := range coords {
		if v < b.min[d] || v > b.max[d] {
			return false
		}
	}
	return true
}

// minDistSq returns a lower bound on the squared distance from q to any
// point inside the box.
func (b *bounds) minDistSq(q []float32) float64 {
	var sum float64
	for d, v := range q {
		var gap float64
		switch {
		case v < b.min[d]:
			gap = float64(b.min[d]) - float64(v)
		case v > b.max[d]:
			gap = float64(v) - float64(b.max[d])
		default:
			continue
		}
		sum += gap * gap
	}
	return sum
}
