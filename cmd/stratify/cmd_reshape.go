package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/healthsim/stratify/internal/reshape"
	"github.com/spf13/cobra"
)

func newReshapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reshape",
		Short: "Reshape wide results into tidy per-measure tables",
		Long: `Reshape wide results into tidy per-measure tables.

The pipeline runs load, manifest validation, aggregation over random
seeds, per-family pivoting, and a tidy CSV dump:
  - counts are summed over seeds within each (input_draw, scenario) group
  - birth weight and hemoglobin statistics are averaged over seeds
  - each measure family lands in <output-dir>/<family>.csv

Examples:
  stratify reshape --db results.db --keyspace keyspace.yaml --output-dir out
  stratify reshape --input output.csv --output-dir out --skip-validation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			input, _ := cmd.Flags().GetString("input")
			db, _ := cmd.Flags().GetString("db")
			keyspacePath, _ := cmd.Flags().GetString("keyspace")
			outputDir, _ := cmd.Flags().GetString("output-dir")
			skipValidation, _ := cmd.Flags().GetBool("skip-validation")

			ctx := context.Background()
			wide, err := loadWideTable(ctx, input, db)
			if err != nil {
				return err
			}

			if !skipValidation {
				if keyspacePath == "" {
					return fmt.Errorf("--keyspace is required (or pass --skip-validation)")
				}
				ks, err := reshape.LoadKeyspace(keyspacePath)
				if err != nil {
					return err
				}
				if err := ks.CheckComplete(wide); err != nil {
					return err
				}
			}

			agg := reshape.AggregateOverSeeds(wide)
			md, err := reshape.Make(agg)
			if err != nil {
				return fmt.Errorf("reshaping results: %w", err)
			}
			if err := md.Dump(outputDir); err != nil {
				return err
			}

			if jsonOut {
				summary := map[string]any{
					"replicates": len(wide.Rows),
					"aggregated": len(agg.Rows),
					"output_dir": outputDir,
					"tables":     tableSummary(md),
				}
				return json.NewEncoder(os.Stdout).Encode(summary)
			}
			fmt.Printf("Reshaped %d replicates (%d after seed aggregation) into %s\n",
				len(wide.Rows), len(agg.Rows), outputDir)
			for _, t := range md.Tables() {
				fmt.Printf("  %s.csv: %d rows\n", t.Name, len(t.Rows))
			}
			return nil
		},
	}

	cmd.Flags().String("input", "", "Wide results CSV to reshape")
	cmd.Flags().String("db", "", "Results database to reshape")
	cmd.Flags().String("keyspace", "", "Run manifest (keyspace.yaml) to validate against")
	cmd.Flags().String("output-dir", "output", "Directory for the tidy per-measure CSV files")
	cmd.Flags().Bool("skip-validation", false, "Skip run-manifest completeness validation")

	return cmd
}

// tableSummary maps table name to row count for machine-readable output.
func tableSummary(md *reshape.MeasureData) map[string]int {
	out := make(map[string]int)
	for _, t := range md.Tables() {
		out[t.Name] = len(t.Rows)
	}
	return out
}
