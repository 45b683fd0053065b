package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/viant/sqlite-kdtree/vector"
)

func TestReadCSV(t *testing.T) {
	in := "# id,x,y\na, 1, 2\nb,3,4.5\n"
	var docs []vector.Document
	err := readCSV(strings.NewReader(in), func(d vector.Document) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		t.Fatalf("readCSV failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].Embedding[1] != 4.5 {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	for _, bad := range []string{"a\n", "a,x\n"} {
		if err := readCSV(strings.NewReader(bad), func(vector.Document) error { return nil }); err == nil {
			t.Errorf("readCSV(%q): expected error", bad)
		}
	}
}

func TestLoadAndQuery(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "points.csv")
	if err := os.WriteFile(csvPath, []byte("p0,0,0\np1,1,0\np2,0,1\np3,5,5\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	dbFile := filepath.Join(dir, "kdvec.db")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"load", "--db", dbFile, "--bucket", "2", "--seed", "1", csvPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.Contains(out.String(), "Loaded 4 documents") {
		t.Fatalf("unexpected load output: %q", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"query", "--db", dbFile, "--k", "2", "0.9,0.1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "p1") || !strings.HasPrefix(lines[2], "p0") {
		t.Fatalf("unexpected query output:\n%s", out.String())
	}
}
