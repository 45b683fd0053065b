package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-kdtree/engine"
	"github.com/viant/sqlite-kdtree/internal/config"
	"github.com/viant/sqlite-kdtree/vector"
)

var (
	configPath string
	dbPath     string
	bucketSize int
	seed       uint64
)

var rootCmd = &cobra.Command{
	Use:   "kdvec",
	Short: "Store embeddings in SQLite and search them with a kd-tree",
	Long: `kdvec keeps documents and their embeddings in a SQLite database and
answers k-nearest-neighbour queries with an incremental kd-tree.

Example usage:
  kdvec load points.csv              # Load id,x1,...,xD rows
  kdvec query --k 5 0.1,0.2,0.3      # Five nearest documents
  kdvec serve --config kdvec.yaml    # HTTP API`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().IntVar(&bucketSize, "bucket", 0, "Leaf bucket size of the kd-tree (overrides config)")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed for randomized splits (overrides config)")
}

// loadConfig applies command-line overrides to the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB = dbPath
	}
	if flags.Changed("bucket") {
		cfg.BucketSize = bucketSize
	}
	if flags.Changed("seed") {
		s := seed
		cfg.Seed = &s
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the configured database and document store. The returned
// function closes the database.
func openStore(ctx context.Context, cfg *config.Config) (*vector.SQLiteStore, func(), error) {
	db, err := engine.OpenWithFunctions(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := vector.NewSQLiteStore(db, cfg.IndexOptions()...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
