package tree

// Entry pairs a payload with its coordinates for insertion.
type Entry[T any] struct {
	Value  T
	Coords []float32
}

// point is a stored coordinate vector; index refers to the payload arena.
type point struct {
	index  int32
	coords []float32
}

// Neighbor describes a candidate returned by a kNN search.
type Neighbor[T any] struct {
	Value  T
	Coords []float32
	// Distance is the squared Euclidean distance to the query.
	Distance float64
}
