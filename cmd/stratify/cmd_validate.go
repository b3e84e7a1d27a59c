package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/healthsim/stratify/internal/reshape"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate results coverage against a run manifest",
		Long: `Validate results coverage against a run manifest.

Checks that the loaded results contain one replicate for every
(input_draw, random_seed, scenario) combination the manifest declares,
and lists any that are missing.

Examples:
  stratify validate --db results.db --keyspace keyspace.yaml
  stratify validate --input output.csv --keyspace keyspace.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			input, _ := cmd.Flags().GetString("input")
			db, _ := cmd.Flags().GetString("db")
			keyspacePath, _ := cmd.Flags().GetString("keyspace")

			if keyspacePath == "" {
				return fmt.Errorf("--keyspace is required")
			}
			ks, err := reshape.LoadKeyspace(keyspacePath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			wide, err := loadWideTable(ctx, input, db)
			if err != nil {
				return err
			}

			missing := ks.Missing(wide)
			if jsonOut {
				ids := make([]string, len(missing))
				for i, id := range missing {
					ids[i] = id.String()
				}
				out := map[string]any{
					"replicates": len(wide.Rows),
					"complete":   len(missing) == 0,
					"missing":    ids,
				}
				if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
					return err
				}
			} else if len(missing) == 0 {
				fmt.Printf("Results are complete: %d replicates cover the manifest\n", len(wide.Rows))
			} else {
				fmt.Printf("Results are missing %d replicates:\n", len(missing))
				for _, id := range missing {
					fmt.Printf("  %s\n", id)
				}
			}

			if len(missing) > 0 {
				return fmt.Errorf("%d declared replicates are missing", len(missing))
			}
			return nil
		},
	}

	cmd.Flags().String("input", "", "Wide results CSV to check")
	cmd.Flags().String("db", "", "Results database to check")
	cmd.Flags().String("keyspace", "", "Run manifest (keyspace.yaml) to validate against")

	return cmd
}
