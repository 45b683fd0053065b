package tree

import "github.com/cockroachdb/errors"

var (
	// ErrDimensionMismatch reports coordinates whose length differs from the
	// dimensionality established by the first insertion.
	ErrDimensionMismatch = errors.New("kdtree: dimension mismatch")

	// ErrInvalidCoordinate reports a NaN or infinite coordinate.
	ErrInvalidCoordinate = errors.New("kdtree: invalid coordinate")

	// ErrSplitFailure reports a leaf for which no non-degenerate partition was
	// found within the allowed number of randomized attempts.
	ErrSplitFailure = errors.New("kdtree: split failure")
)
