package vector

import (
	"testing"

	"github.com/viant/sqlite-kdtree/engine"
)

// TestSQLOrderByVecFunctions orders the docs table by vec_cosine and
// vec_l2sq over embeddings stored with EncodeEmbedding.
func TestSQLOrderByVecFunctions(t *testing.T) {
	db, err := engine.OpenWithFunctions(":memory:")
	if err != nil {
		t.Fatalf("engine.OpenWithFunctions(:memory:) failed: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	e1, _ := EncodeEmbedding([]float32{1, 0})
	e2, _ := EncodeEmbedding([]float32{0, 1})
	e3, _ := EncodeEmbedding([]float32{0, -1})
	if _, err := db.Exec(`INSERT INTO docs(id, content, meta, embedding) VALUES
		('d1', 'one', '{}', ?),
		('d2', 'two', '{}', ?),
		('d3', 'three', '{}', ?)`, e1, e2, e3); err != nil {
		t.Fatalf("insert into docs failed: %v", err)
	}
	q, _ := EncodeEmbedding([]float32{0.8, 0.1})

	testCases := []struct {
		name  string
		query string
		want  string
	}{
		{name: "cosine", query: `SELECT id FROM docs ORDER BY vec_cosine(embedding, ?) DESC`, want: "d1,d2,d3"},
		{name: "l2sq", query: `SELECT id FROM docs ORDER BY vec_l2sq(embedding, ?)`, want: "d1,d2,d3"},
	}
	for _, tc := range testCases {
		rows, err := db.Query(tc.query, q)
		if err != nil {
			t.Fatalf("%s: query failed: %v", tc.name, err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				t.Fatalf("%s: scan id failed: %v", tc.name, err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			t.Fatalf("%s: rows.Err: %v", tc.name, err)
		}
		rows.Close()
		if got := joinIDs(ids); got != tc.want {
			t.Errorf("%s: order = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}
