package kdtree

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	idxapi "github.com/viant/sqlite-kdtree/index"
	"github.com/viant/sqlite-kdtree/index/bruteforce"
	"github.com/viant/sqlite-kdtree/internal/kdtree/tree"
	"github.com/viant/vec/search"
)

// Magic prefixes every blob produced by MarshalBinary.
const Magic = "KDT1"

// ErrDimensionMismatch is returned when a vector does not match the
// dimensionality of the index.
var ErrDimensionMismatch = tree.ErrDimensionMismatch

// Index is a kNN index over a kd-tree. It is safe for concurrent use: Add
// and Build take the write lock, queries share the read lock.
type Index struct {
	mu       sync.RWMutex
	settings settings
	tree     *tree.Tree[int]
	ids      []string
	vecs     [][]float32
}

// Match is a single kNN hit.
type Match struct {
	ID string
	// Distance is the squared Euclidean distance to the query.
	Distance float64
	// Score is 1/(1+d) with d the Euclidean distance; higher is closer.
	Score float64
}

// New constructs an empty index.
func New(opts ...Option) *Index {
	s := settings{bucketSize: tree.DefaultBucketSize}
	for _, opt := range opts {
		opt(&s)
	}
	if s.bucketSize <= 0 {
		s.bucketSize = tree.DefaultBucketSize
	}
	idx := &Index{settings: s}
	idx.tree = idx.newTree()
	return idx
}

func (i *Index) newTree() *tree.Tree[int] {
	opts := []tree.Option{
		tree.WithBucketSize(i.settings.bucketSize),
		tree.WithMaxSplitAttempts(i.settings.maxSplitAttempts),
	}
	if i.settings.seeded {
		opts = append(opts, tree.WithSeed(i.settings.seed))
	}
	return tree.New[int](opts...)
}

// Build replaces the content of the index with the given vectors. The
// previous content is kept when the input is rejected.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.Newf("kdtree: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	prevTree, prevIDs, prevVecs := i.tree, i.ids, i.vecs
	i.tree = i.newTree()
	i.ids, i.vecs = nil, nil
	err := i.add(ids, vectors)
	if err != nil && i.tree.Len() == 0 {
		i.tree, i.ids, i.vecs = prevTree, prevIDs, prevVecs
	}
	return err
}

// Add inserts vectors into the existing tree.
func (i *Index) Add(ids []string, vectors [][]float32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.add(ids, vectors)
}

func (i *Index) add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.Newf("kdtree: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	base := len(i.ids)
	entries := make([]tree.Entry[int], len(vectors))
	for j, v := range vectors {
		entries[j] = tree.Entry[int]{Value: base + j, Coords: v}
	}
	err := i.tree.InsertAll(entries)
	// Points stay in the tree when only a split failed; keep payloads aligned.
	if i.tree.Len() > base {
		i.ids = append(i.ids, ids...)
		for _, v := range vectors {
			i.vecs = append(i.vecs, append([]float32(nil), v...))
		}
	}
	return err
}

// Query returns up to k ids ordered by decreasing Euclidean similarity.
// k <= 0 returns every indexed vector.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	matches, err := i.Search(query, k)
	if err != nil || len(matches) == 0 {
		return nil, nil, err
	}
	ids := make([]string, len(matches))
	scores := make([]float64, len(matches))
	for j, m := range matches {
		ids[j] = m.ID
		scores[j] = m.Score
	}
	return ids, scores, nil
}

// Search returns up to k matches nearest first. k <= 0 returns all.
func (i *Index) Search(query []float32, k int) ([]Match, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if k <= 0 {
		k = i.tree.Len()
	}
	neighbors, err := i.tree.KNearest(query, k)
	if err != nil {
		return nil, err
	}
	q := search.Float32s(query)
	out := make([]Match, len(neighbors))
	for j, n := range neighbors {
		out[j] = Match{
			ID:       i.ids[n.Value],
			Distance: n.Distance,
			Score:    1 / (1 + float64(q.EuclideanDistance(i.vecs[n.Value]))),
		}
	}
	return out, nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tree.Len()
}

// Dims returns the vector dimensionality, 0 while empty.
func (i *Index) Dims() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tree.Dims()
}

// IsEmpty reports whether nothing was indexed.
func (i *Index) IsEmpty() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tree.IsEmpty()
}

// BucketSize returns the leaf capacity of the underlying tree.
func (i *Index) BucketSize() int { return i.settings.bucketSize }

// Stats reports the shape of the underlying tree.
func (i *Index) Stats() tree.Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tree.Stats()
}

// MarshalBinary stores Magic, the bucket size (uint32) and the point set in
// the brute-force encoding.
func (i *Index) MarshalBinary() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]byte, 0, 8)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(i.settings.bucketSize))
	return append(out, bruteforce.Encode(i.tree.Dims(), i.ids, i.vecs)...), nil
}

// UnmarshalBinary rebuilds the index by re-inserting the stored points.
func (i *Index) UnmarshalBinary(data []byte) error {
	if !IsBlob(data) || len(data) < len(Magic)+4 {
		return errors.New("kdtree: invalid data")
	}
	bucketSize := int(binary.LittleEndian.Uint32(data[len(Magic):]))
	ids, vecs, err := bruteforce.Decode(data[len(Magic)+4:])
	if err != nil {
		return errors.Wrap(err, "kdtree: decode points")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if bucketSize > 0 {
		i.settings.bucketSize = bucketSize
	}
	i.tree = i.newTree()
	i.ids, i.vecs = nil, nil
	return i.add(ids, vecs)
}

// IsBlob reports whether data was produced by MarshalBinary.
func IsBlob(data []byte) bool {
	return len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic
}

var _ idxapi.Appender = (*Index)(nil)
