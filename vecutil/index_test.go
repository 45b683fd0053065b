package vecutil

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/viant/sqlite-kdtree/engine"
	"github.com/viant/sqlite-kdtree/vec"
)

// letterEmbed maps text onto counts of the letters a, b and c.
func letterEmbed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, 3)
	for _, r := range text {
		if r >= 'a' && r <= 'c' {
			out[r-'a']++
		}
	}
	return out, nil
}

func TestIndex_UpsertQueryDelete(t *testing.T) {
	db, err := engine.Open(filepath.Join(t.TempDir(), "vecutil.sqlite"))
	if err != nil {
		t.Fatalf("engine.Open failed: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := vec.Register(db); err != nil {
		t.Fatalf("vec.Register failed: %v", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		t.Fatalf("PRAGMA setup failed: %v", err)
	}
	if _, err := db.Exec(`CREATE VIRTUAL TABLE docs USING vec(doc_id, index=kdtree, kd_seed=3)`); err != nil {
		if strings.Contains(err.Error(), "no such module: vec") {
			t.Skipf("skipping: vec vtab not available (%v)", err)
		}
		t.Fatalf("CREATE VIRTUAL TABLE failed: %v", err)
	}
	ctx := context.Background()
	if err := vec.Prepare(ctx, db, "docs"); err != nil {
		t.Fatalf("vec.Prepare failed: %v", err)
	}
	db.SetMaxOpenConns(2)

	ix, err := NewIndex(db, "docs", "ds", letterEmbed)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	docs := []Document{
		{ID: "a", Content: "aaa", Meta: "{}"},
		{ID: "b", Content: "bbb", Meta: "{}"},
		{ID: "ab", Content: "ab", Meta: `{"mixed":true}`},
	}
	if err := ix.UpsertDocumentsText(ctx, docs); err != nil {
		t.Fatalf("UpsertDocumentsText failed: %v", err)
	}

	matches, err := ix.QueryText(ctx, "aab", 2)
	if err != nil {
		t.Fatalf("QueryText failed: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "ab" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if math.Abs(matches[0].Score-1/(1+matches[0].Distance)) > 1e-9 || matches[0].Meta != `{"mixed":true}` {
		t.Fatalf("unexpected first match: %+v", matches[0])
	}

	// Re-upserting changes the embedding in place.
	if err := ix.UpsertDocumentsText(ctx, []Document{{ID: "b", Content: "aab"}}); err != nil {
		t.Fatalf("UpsertDocumentsText(update) failed: %v", err)
	}
	ids, err := MatchText(ctx, db, "docs", "doc_id", "ds", letterEmbed, "aab", 1)
	if err != nil {
		t.Fatalf("MatchText failed: %v", err)
	}
	if fmt.Sprint(ids) != "[b]" {
		t.Fatalf("MatchText = %v, want [b]", ids)
	}

	if err := ix.DeleteDocuments(ctx, []string{"b", "ab"}); err != nil {
		t.Fatalf("DeleteDocuments failed: %v", err)
	}
	matches, err = ix.QueryText(ctx, "aab", 0)
	if err != nil {
		t.Fatalf("QueryText after delete failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("unexpected matches after delete: %+v", matches)
	}
}

func TestShadowTableName(t *testing.T) {
	if got := ShadowTableName("docs"); got != "_vec_docs" {
		t.Fatalf("ShadowTableName = %s", got)
	}
	if _, err := NewIndex(nil, "docs", "ds", letterEmbed); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
