package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kdvec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
db: /tmp/vectors.db
bucket_size: 32
seed: 7
listen: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB != "/tmp/vectors.db" || cfg.BucketSize != 32 || cfg.Listen != "127.0.0.1:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Seed == nil || *cfg.Seed != 7 {
		t.Fatalf("seed = %v, want 7", cfg.Seed)
	}
	if len(cfg.IndexOptions()) != 3 {
		t.Fatalf("expected bucket, split and seed options")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}

	// Missing keys keep their defaults.
	cfg, err = Load(writeConfig(t, "db: other.db\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB != "other.db" || cfg.BucketSize != Default().BucketSize || cfg.Seed != nil {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "bucket", content: "bucket_size: 0\n"},
		{name: "split attempts", content: "max_split_attempts: -1\n"},
		{name: "listen", content: "listen: \"\"\n"},
		{name: "syntax", content: "db: [unterminated\n"},
		{name: "type", content: "bucket_size: many\n"},
	}
	for _, tc := range testCases {
		if _, err := Load(writeConfig(t, tc.content)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
