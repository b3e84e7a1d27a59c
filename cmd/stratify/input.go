package main

import (
	"context"
	"fmt"

	"github.com/healthsim/stratify/internal/reshape"
	"github.com/healthsim/stratify/internal/results"
)

// loadWideTable reads the concatenated wide table from exactly one of the
// two supported sources: an Arrow-exported wide CSV or a results database.
func loadWideTable(ctx context.Context, input, db string) (*reshape.WideTable, error) {
	switch {
	case input != "" && db != "":
		return nil, fmt.Errorf("--input and --db are mutually exclusive")
	case input != "":
		return results.ReadWideCSV(input)
	case db != "":
		store, err := results.Open(db)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadWide(ctx)
	default:
		return nil, fmt.Errorf("either --input or --db is required")
	}
}
