package tree

import (
	"slices"
	"sort"
)

// Candidates holds at most k items ordered by ascending distance. Items with
// equal distance keep their arrival order reversed: a newcomer is placed in
// front of the first entry whose distance is greater or equal.
type Candidates[E any] struct {
	items []candidate[E]
	k     int
}

type candidate[E any] struct {
	item E
	dist float64
}

// NewCandidates returns an empty set with capacity k. Negative k is treated as 0.
func NewCandidates[E any](k int) *Candidates[E] {
	if k < 0 {
		k = 0
	}
	return &Candidates[E]{k: k, items: make([]candidate[E], 0, min(k, 64))}
}

// Offer inserts item in sorted position and keeps only the k nearest entries.
func (c *Candidates[E]) Offer(item E, dist float64) {
	if c.k == 0 {
		return
	}
	i := sort.Search(len(c.items), func(i int) bool { return c.items[i].dist >= dist })
	if i == len(c.items) {
		if len(c.items) < c.k {
			c.items = append(c.items, candidate[E]{item: item, dist: dist})
		}
		return
	}
	c.items = slices.Insert(c.items, i, candidate[E]{item: item, dist: dist})
	if len(c.items) > c.k {
		clear(c.items[c.k:])
		c.items = c.items[:c.k]
	}
}

// Worst returns the entry with the largest distance; ok is false when empty.
func (c *Candidates[E]) Worst() (item E, dist float64, ok bool) {
	if len(c.items) == 0 {
		return item, 0, false
	}
	last := c.items[len(c.items)-1]
	return last.item, last.dist, true
}

// Len returns the number of entries held.
func (c *Candidates[E]) Len() int { return len(c.items) }

// Cap returns k.
func (c *Candidates[E]) Cap() int { return c.k }

// Full reports whether the set holds k entries.
func (c *Candidates[E]) Full() bool { return len(c.items) >= c.k }

// Results returns the items nearest first.
func (c *Candidates[E]) Results() []E {
	out := make([]E, len(c.items))
	for i, cand := range c.items {
		out[i] = cand.item
	}
	return out
}

// Distances returns the distances aligned with Results.
func (c *Candidates[E]) Distances() []float64 {
	out := make([]float64, len(c.items))
	for i, cand := range c.items {
		out[i] = cand.dist
	}
	return out
}
