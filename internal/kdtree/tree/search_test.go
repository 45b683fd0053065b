package tree

import (
	"math/rand/v2"
	"slices"
	"sort"
	"testing"
)

type testPoint struct {
	id     int
	coords []float32
}

func randomPoints(rng *rand.Rand, n, dims int, grid bool) []testPoint {
	out := make([]testPoint, n)
	for i := range out {
		coords := make([]float32, dims)
		for d := range coords {
			if grid {
				coords[d] = float32(rng.IntN(8))
			} else {
				coords[d] = float32(rng.NormFloat64() * 10)
			}
		}
		out[i] = testPoint{id: i, coords: coords}
	}
	return out
}

// bruteForce returns the k smallest squared distances from q.
func bruteForce(points []testPoint, q []float32, k int) []float64 {
	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = distSq(q, p.coords)
	}
	sort.Float64s(dists)
	if k > len(dists) {
		k = len(dists)
	}
	return dists[:k]
}

func buildTree(t *testing.T, points []testPoint, bucket int, seed uint64) *Tree[int] {
	t.Helper()
	tr := New[int](WithBucketSize(bucket), WithSeed(seed))
	entries := make([]Entry[int], len(points))
	for i, p := range points {
		entries[i] = Entry[int]{Value: p.id, Coords: p.coords}
	}
	for start := 0; start < len(entries); start += 13 {
		end := min(start+13, len(entries))
		if err := tr.InsertAll(entries[start:end]); err != nil {
			t.Fatalf("InsertAll failed: %v", err)
		}
	}
	return tr
}

func TestTree_KNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	testCases := []struct {
		description string
		n           int
		dims        int
		bucket      int
		grid        bool
	}{
		{description: "single point", n: 1, dims: 2, bucket: 10},
		{description: "1d small bucket", n: 60, dims: 1, bucket: 1},
		{description: "2d default bucket", n: 150, dims: 2, bucket: 10},
		{description: "3d grid duplicates", n: 150, dims: 3, bucket: 4, grid: true},
		{description: "5d", n: 120, dims: 5, bucket: 3},
		{description: "8d grid", n: 90, dims: 8, bucket: 2, grid: true},
	}

	for _, tc := range testCases {
		points := randomPoints(rng, tc.n, tc.dims, tc.grid)
		tr := buildTree(t, points, tc.bucket, uint64(tc.n))
		byID := make(map[int][]float32, len(points))
		for _, p := range points {
			byID[p.id] = p.coords
		}
		for q := 0; q < 5; q++ {
			query := randomPoints(rng, 1, tc.dims, tc.grid)[0].coords
			for k := 0; k <= tc.n+5; k++ {
				got, err := tr.KNearest(query, k)
				if err != nil {
					t.Fatalf("%s: KNearest failed: %v", tc.description, err)
				}
				want := bruteForce(points, query, k)
				if len(got) != len(want) {
					t.Fatalf("%s: k=%d returned %d points, want %d", tc.description, k, len(got), len(want))
				}
				seen := make(map[int]bool, len(got))
				for i, n := range got {
					if n.Distance != want[i] {
						t.Fatalf("%s: k=%d result %d distance %v, want %v", tc.description, k, i, n.Distance, want[i])
					}
					if seen[n.Value] {
						t.Fatalf("%s: k=%d duplicate result %d", tc.description, k, n.Value)
					}
					seen[n.Value] = true
					if !slices.Equal(byID[n.Value], n.Coords) || distSq(query, n.Coords) != n.Distance {
						t.Fatalf("%s: k=%d result %d carries wrong coordinates", tc.description, k, n.Value)
					}
				}
			}
		}
	}
}

func TestTree_InsertionOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	points := randomPoints(rng, 200, 3, false)
	shuffled := slices.Clone(points)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := buildTree(t, points, 5, 1)
	b := New[int](WithBucketSize(5), WithSeed(2))
	for _, p := range shuffled {
		if err := b.Insert(p.id, p.coords); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	for q := 0; q < 20; q++ {
		query := randomPoints(rng, 1, 3, false)[0].coords
		for _, k := range []int{1, 3, 10, 50, 250} {
			ra, _ := a.KNearest(query, k)
			rb, _ := b.KNearest(query, k)
			ids := func(ns []Neighbor[int]) []int {
				out := make([]int, len(ns))
				for i, n := range ns {
					out[i] = n.Value
				}
				slices.Sort(out)
				return out
			}
			if !slices.Equal(ids(ra), ids(rb)) {
				t.Fatalf("k=%d: result sets differ between insertion orders", k)
			}
		}
	}
}

func TestTree_KNearestEmpty(t *testing.T) {
	tr := New[string]()
	for _, k := range []int{-1, 0, 1, 10} {
		got, err := tr.KNearest([]float32{1, 2, 3}, k)
		if err != nil || len(got) != 0 {
			t.Fatalf("KNearest on empty tree with k=%d = %v, %v; want empty, nil", k, got, err)
		}
	}
	if _, ok, err := tr.Nearest([]float32{1}); ok || err != nil {
		t.Fatalf("Nearest on empty tree = %v, %v; want false, nil", ok, err)
	}
	_ = tr.Insert("x", []float32{1, 1})
	n, ok, err := tr.Nearest([]float32{0, 0})
	if err != nil || !ok || n.Value != "x" || n.Distance != 2 {
		t.Fatalf("Nearest = %+v, %v, %v", n, ok, err)
	}
}

func TestBounds_MinDistSq(t *testing.T) {
	var b bounds
	if !b.empty() {
		t.Fatalf("zero bounds not empty")
	}
	b.extend([]float32{0, 0})
	b.extend([]float32{2, 4})
	testCases := []struct {
		description string
		q           []float32
		expect      float64
	}{
		{description: "inside", q: []float32{1, 1}, expect: 0},
		{description: "on face", q: []float32{2, 3}, expect: 0},
		{description: "left of box", q: []float32{-3, 2}, expect: 9},
		{description: "corner", q: []float32{5, 8}, expect: 9 + 16},
	}
	for _, tc := range testCases {
		if got := b.minDistSq(tc.q); got != tc.expect {
			t.Errorf("%s: minDistSq(%v) = %v, want %v", tc.description, tc.q, got, tc.expect)
		}
	}
}
