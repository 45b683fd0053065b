package main

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-kdtree/vec"
	"github.com/viant/sqlite-kdtree/vector"
)

var queryK int

var queryCmd = &cobra.Command{
	Use:   "query x1,...,xD",
	Short: "Print the documents nearest to a point",
	Long: `Print the k documents nearest to the given point, nearest first, with
their similarity score and squared Euclidean distance.

Example:
  kdvec query --k 3 1.5,2,0`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 10, "Number of neighbours")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	point, err := vec.ParseVector(args[0])
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	found, err := store.SimilaritySearch(cmd.Context(), point, queryK)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tDIST2")
	for _, d := range found {
		dist, err := vector.SquaredL2Distance(point, d.Embedding)
		if err != nil {
			dist = math.NaN()
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", d.ID, d.Score, dist)
	}
	return w.Flush()
}
