package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/viant/sqlite-kdtree/index/kdtree"
	"github.com/viant/sqlite-kdtree/internal/kdtree/tree"
)

// Config is the kdvec configuration file.
type Config struct {
	DB               string  `yaml:"db"`
	BucketSize       int     `yaml:"bucket_size"`
	Seed             *uint64 `yaml:"seed,omitempty"`
	MaxSplitAttempts int     `yaml:"max_split_attempts,omitempty"`
	Listen           string  `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DB:         "kdvec.db",
		BucketSize: tree.DefaultBucketSize,
		Listen:     ":8080",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if c.BucketSize <= 0 {
		return fmt.Errorf("bucket_size must be positive, got %d", c.BucketSize)
	}
	if c.MaxSplitAttempts < 0 {
		return fmt.Errorf("max_split_attempts must not be negative, got %d", c.MaxSplitAttempts)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	return nil
}

// IndexOptions converts the tree settings into kd index options.
func (c *Config) IndexOptions() []kdtree.Option {
	opts := []kdtree.Option{
		kdtree.WithBucketSize(c.BucketSize),
		kdtree.WithMaxSplitAttempts(c.MaxSplitAttempts),
	}
	if c.Seed != nil {
		opts = append(opts, kdtree.WithSeed(*c.Seed))
	}
	return opts
}
