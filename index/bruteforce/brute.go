package bruteforce

import (
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

// Metric selects how vectors are scored against a query.
type Metric int

const (
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = iota
	// MetricL2 scores by 1/(1+d) where d is the Euclidean distance.
	MetricL2
)

// Index is a simple brute-force vector index.
type Index struct {
	Metric Metric

	ids  []string
	vecs [][]float32
	dim  int
	mags []float32
}

// Build loads ids and vectors and precomputes magnitudes.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("bruteforce: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		i.ids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("bruteforce: inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
	}
	mags := make([]float32, len(vectors))
	for j := range vectors {
		mags[j] = search.Float32s(vectors[j]).Magnitude()
	}
	i.ids = append([]string(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	i.mags = mags
	return nil
}

// Query returns the top-k ids by descending score.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.dim == 0 || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), i.dim)
	}
	type scored struct {
		idx   int
		score float64
	}
	q := search.Float32s(query)
	scoreds := make([]scored, 0, len(i.vecs))
	switch i.Metric {
	case MetricL2:
		for j := range i.vecs {
			d := float64(q.EuclideanDistance(i.vecs[j]))
			scoreds = append(scoreds, scored{idx: j, score: 1 / (1 + d)})
		}
	default:
		qm := q.Magnitude()
		if qm == 0 {
			return nil, nil, nil
		}
		for j := range i.vecs {
			if i.mags[j] == 0 {
				continue
			}
			s := 1 - float64(q.CosineDistanceWithMagnitude(i.vecs[j], qm, i.mags[j]))
			if math.IsNaN(s) {
				continue
			}
			scoreds = append(scoreds, scored{idx: j, score: s})
		}
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].score > scoreds[b].score })
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outIDs := make([]string, k)
	outScores := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = i.ids[scoreds[n].idx]
		outScores[n] = scoreds[n].score
	}
	return outIDs, outScores, nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return len(i.ids) }

// MarshalBinary stores the point set using Encode.
func (i *Index) MarshalBinary() ([]byte, error) {
	return Encode(i.dim, i.ids, i.vecs), nil
}

// UnmarshalBinary restores the index from bytes produced by MarshalBinary.
func (i *Index) UnmarshalBinary(data []byte) error {
	ids, vecs, err := Decode(data)
	if err != nil {
		return err
	}
	return i.Build(ids, vecs)
}
