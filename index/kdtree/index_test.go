package kdtree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/viant/sqlite-kdtree/index/bruteforce"
	"github.com/viant/sqlite-kdtree/internal/kdtree/tree"
)

func TestIndex_Query(t *testing.T) {
	idx := New(WithBucketSize(2), WithSeed(7))
	if err := idx.Build([]string{"far", "near", "mid"}, [][]float32{{10, 0}, {1, 0}, {3, 4}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ids, scores, err := idx.Query([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"near", "mid"}) {
		t.Fatalf("ids = %v, want [near mid]", ids)
	}
	if math.Abs(scores[0]-0.5) > 1e-9 || math.Abs(scores[1]-1.0/6) > 1e-9 {
		t.Fatalf("scores = %v", scores)
	}

	all, _, err := idx.Query([]float32{0, 0}, 0)
	if err != nil {
		t.Fatalf("Query(k=0) failed: %v", err)
	}
	if !reflect.DeepEqual(all, []string{"near", "mid", "far"}) {
		t.Fatalf("ids = %v, want [near mid far]", all)
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := New()
	ids, scores, err := idx.Query([]float32{1, 2}, 3)
	if err != nil || ids != nil || scores != nil {
		t.Fatalf("Query on empty index = %v %v %v", ids, scores, err)
	}
	if !idx.IsEmpty() || idx.Len() != 0 || idx.Dims() != 0 {
		t.Fatalf("unexpected state of empty index")
	}
}

func TestIndex_AddMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	idx := New(WithBucketSize(4), WithSeed(3))
	brute := &bruteforce.Index{Metric: bruteforce.MetricL2}
	var allIDs []string
	var allVecs [][]float32
	for batch := 0; batch < 5; batch++ {
		var ids []string
		var vecs [][]float32
		for j := 0; j < 40; j++ {
			ids = append(ids, fmt.Sprintf("p%d_%d", batch, j))
			vecs = append(vecs, []float32{float32(r.IntN(20)), float32(r.IntN(20)), float32(r.IntN(20))})
		}
		if err := idx.Add(ids, vecs); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		allIDs = append(allIDs, ids...)
		allVecs = append(allVecs, vecs...)
	}
	if err := brute.Build(allIDs, allVecs); err != nil {
		t.Fatalf("brute Build failed: %v", err)
	}
	if idx.Len() != len(allIDs) {
		t.Fatalf("Len = %d, want %d", idx.Len(), len(allIDs))
	}
	for q := 0; q < 20; q++ {
		query := []float32{float32(r.IntN(20)), float32(r.IntN(20)), float32(r.IntN(20))}
		_, got, err := idx.Query(query, 7)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		_, want, _ := brute.Query(query, 7)
		if len(got) != len(want) {
			t.Fatalf("got %d scores, want %d", len(got), len(want))
		}
		// Ties may resolve to different ids, scores must agree.
		sort.Float64s(got)
		sort.Float64s(want)
		for j := range got {
			if math.Abs(got[j]-want[j]) > 1e-6 {
				t.Fatalf("query %v: scores %v, want %v", query, got, want)
			}
		}
	}
}

func TestIndex_AddValidation(t *testing.T) {
	idx := New()
	if err := idx.Add([]string{"a"}, nil); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if err := idx.Add([]string{"a"}, [][]float32{{1, 2}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err := idx.Add([]string{"b"}, [][]float32{{1, 2, 3}})
	if !errors.Is(err, tree.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len = %d after rejected batch, want 1", idx.Len())
	}
	if _, _, err := idx.Query([]float32{1}, 1); !errors.Is(err, tree.ErrDimensionMismatch) {
		t.Fatalf("query err = %v, want ErrDimensionMismatch", err)
	}
}

func TestIndex_BuildKeepsContentOnRejectedInput(t *testing.T) {
	idx := New(WithSeed(1))
	if err := idx.Build([]string{"a", "b"}, [][]float32{{0, 0}, {5, 5}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	testCases := []struct {
		name    string
		ids     []string
		vectors [][]float32
	}{
		{name: "length mismatch", ids: []string{"c"}, vectors: nil},
		{name: "mixed dimensions", ids: []string{"c", "d"}, vectors: [][]float32{{1, 1}, {1, 1, 1}}},
		{name: "non-finite", ids: []string{"c"}, vectors: [][]float32{{float32(math.Inf(1)), 0}}},
	}
	for _, tc := range testCases {
		if err := idx.Build(tc.ids, tc.vectors); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if idx.Len() != 2 {
			t.Fatalf("%s: Len = %d, want 2", tc.name, idx.Len())
		}
		ids, _, err := idx.Query([]float32{4, 4}, 1)
		if err != nil || !reflect.DeepEqual(ids, []string{"b"}) {
			t.Fatalf("%s: Query = %v, %v; want [b]", tc.name, ids, err)
		}
	}
	if err := idx.Build([]string{"x"}, [][]float32{{1, 2, 3}}); err != nil {
		t.Fatalf("Build with new dimensionality failed: %v", err)
	}
	if idx.Dims() != 3 || idx.Len() != 1 {
		t.Fatalf("Dims = %d, Len = %d after rebuild", idx.Dims(), idx.Len())
	}
	if !errors.Is(ErrDimensionMismatch, tree.ErrDimensionMismatch) {
		t.Fatalf("ErrDimensionMismatch does not alias the tree error")
	}
}

func TestIndex_MarshalRoundTrip(t *testing.T) {
	idx := New(WithBucketSize(3))
	ids := []string{"a", "b", "c", "d", "e"}
	vecs := [][]float32{{0, 0}, {1, 1}, {2, 2}, {5, 5}, {9, 9}}
	if err := idx.Build(ids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if !IsBlob(data) {
		t.Fatalf("blob missing magic prefix")
	}
	restored := New()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.BucketSize() != 3 || restored.Len() != 5 {
		t.Fatalf("restored bucket=%d len=%d", restored.BucketSize(), restored.Len())
	}
	got, _, err := restored.Query([]float32{4.6, 4.6}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"d", "c"}) {
		t.Fatalf("ids = %v, want [d c]", got)
	}
}

func TestIndex_UnmarshalInvalid(t *testing.T) {
	idx := New()
	for _, data := range [][]byte{nil, []byte("KDT"), []byte("XXXX\x01\x00\x00\x00"), []byte("KDT1\x01\x00\x00\x00\x01")} {
		if err := idx.UnmarshalBinary(data); err == nil {
			t.Fatalf("expected error for %q", data)
		}
	}
}

func TestIndex_Stats(t *testing.T) {
	idx := New(WithBucketSize(2), WithSeed(1))
	var ids []string
	var vecs [][]float32
	for i := 0; i < 16; i++ {
		ids = append(ids, fmt.Sprint(i))
		vecs = append(vecs, []float32{float32(i)})
	}
	if err := idx.Build(ids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	stats := idx.Stats()
	if stats.Leaves < 2 || stats.Depth < 1 {
		t.Fatalf("expected a split tree, got %+v", stats)
	}
}
