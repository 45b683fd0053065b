package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-kdtree/vector"
)

var loadBatch int

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load id,x1,...,xD rows from a CSV file",
	Long: `Load documents from a CSV file. Each row is an id followed by the
coordinates of its embedding; every row must have the same number of
coordinates. Lines starting with # are ignored.

Example:
  kdvec load points.csv
  kdvec load --batch 500 - < points.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().IntVar(&loadBatch, "batch", 1000, "Documents per transaction")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	batch := max(loadBatch, 1)
	docs := make([]vector.Document, 0, batch)
	total := 0
	flush := func() error {
		if len(docs) == 0 {
			return nil
		}
		if _, err := store.AddDocuments(cmd.Context(), docs); err != nil {
			return err
		}
		total += len(docs)
		docs = docs[:0]
		return nil
	}
	err = readCSV(in, func(doc vector.Document) error {
		docs = append(docs, doc)
		if len(docs) >= batch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return fmt.Errorf("loaded %d documents: %w", total, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d documents into %s\n", total, cfg.DB)
	return nil
}

// readCSV calls fn for every id,x1,...,xD row of r.
func readCSV(r io.Reader, fn func(vector.Document) error) error {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return err
		}
		if len(record) < 2 {
			return fmt.Errorf("line %d: want id and at least one coordinate", line)
		}
		embedding := make([]float32, len(record)-1)
		for i, field := range record[1:] {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			embedding[i] = float32(f)
		}
		if err := fn(vector.Document{ID: strings.TrimSpace(record[0]), Embedding: embedding}); err != nil {
			return err
		}
	}
}
