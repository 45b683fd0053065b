package tree

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"
)

// DefaultBucketSize is the leaf capacity used when none is configured.
const DefaultBucketSize = 10

// Tree is an incremental bucket kd-tree holding payloads of type T.
type Tree[T any] struct {
	root    *node
	dims    int
	builder builder
	values  values[T]
}

type options struct {
	bucketSize       int
	maxSplitAttempts int
	rng              *rand.Rand
}

// Option configures a Tree.
type Option func(*options)

// WithBucketSize sets the number of points a leaf may hold before it becomes
// eligible to split. Non-positive values select DefaultBucketSize.
func WithBucketSize(n int) Option {
	return func(o *options) { o.bucketSize = n }
}

// WithMaxSplitAttempts caps the randomized retries of a degenerate split.
// Non-positive values select a limit proportional to dims*points.
func WithMaxSplitAttempts(n int) Option {
	return func(o *options) { o.maxSplitAttempts = n }
}

// WithSeed makes the randomized split fallback reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRand uses r as the source of randomness for the split fallback.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// New constructs an empty tree.
func New[T any](opts ...Option) *Tree[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bucketSize <= 0 {
		o.bucketSize = DefaultBucketSize
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Tree[T]{
		root: newNode(),
		builder: builder{
			bucketSize:       o.bucketSize,
			maxSplitAttempts: o.maxSplitAttempts,
			rng:              o.rng,
		},
	}
}

// Insert adds a single point.
func (t *Tree[T]) Insert(value T, coords []float32) error {
	return t.InsertAll([]Entry[T]{{Value: value, Coords: coords}})
}

// InsertAll adds a batch of points. The whole batch is validated before the
// tree is modified; leaves are split once all points have been routed.
func (t *Tree[T]) InsertAll(entries []Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}
	if err := t.validate(entries); err != nil {
		return err
	}
	points := make([]point, len(entries))
	for i, e := range entries {
		points[i] = point{index: t.values.put(e.Value), coords: slices.Clone(e.Coords)}
	}
	if t.dims == 0 {
		t.dims = len(points[0].coords)
	}
	return t.builder.addAll(t.root, points)
}

func (t *Tree[T]) validate(entries []Entry[T]) error {
	dims := t.dims
	for i, e := range entries {
		if len(e.Coords) == 0 {
			return errors.Wrapf(ErrDimensionMismatch, "point %d has no coordinates", i)
		}
		if dims == 0 {
			dims = len(e.Coords)
		}
		if len(e.Coords) != dims {
			return errors.Wrapf(ErrDimensionMismatch, "point %d has %d coordinates, want %d", i, len(e.Coords), dims)
		}
		for d, v := range e.Coords {
			if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
				return errors.Wrapf(ErrInvalidCoordinate, "point %d coordinate %d is %v", i, d, v)
			}
		}
	}
	return nil
}

// IsEmpty reports whether no point was ever inserted.
func (t *Tree[T]) IsEmpty() bool { return t.root.box.empty() }

// Len returns the number of stored points.
func (t *Tree[T]) Len() int { return t.values.len() }

// Dims returns the dimensionality fixed by the first insertion, 0 when empty.
func (t *Tree[T]) Dims() int { return t.dims }

// BucketSize returns the configured leaf capacity.
func (t *Tree[T]) BucketSize() int { return t.builder.bucketSize }

// Stats summarises the shape of a tree.
type Stats struct {
	Nodes       int
	Leaves      int
	Depth       int
	MaxLeafSize int
}

// Stats walks the tree and reports its shape.
func (t *Tree[T]) Stats() Stats {
	type level struct {
		node  *node
		depth int
	}
	var s Stats
	stack := []level{{node: t.root, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.Nodes++
		s.Depth = max(s.Depth, f.depth)
		switch st := f.node.state.(type) {
		case *branch:
			stack = append(stack, level{st.left, f.depth + 1}, level{st.right, f.depth + 1})
		case *leaf:
			s.Leaves++
			s.MaxLeafSize = max(s.MaxLeafSize, len(st.points))
		}
	}
	return s
}
