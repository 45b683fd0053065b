package kdtree

type settings struct {
	bucketSize       int
	maxSplitAttempts int
	seed             uint64
	seeded           bool
}

// Option configures an Index.
type Option func(*settings)

// WithBucketSize sets the leaf capacity of the tree.
func WithBucketSize(n int) Option {
	return func(s *settings) { s.bucketSize = n }
}

// WithSeed makes randomized splits reproducible.
func WithSeed(seed uint64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithMaxSplitAttempts caps randomized split retries; 0 selects the default.
func WithMaxSplitAttempts(n int) Option {
	return func(s *settings) { s.maxSplitAttempts = n }
}
