package results

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 holds one row per simulation replicate plus its flat key/value
// output. Values are nullable: NaN placeholders for empty statistic groups
// are stored as NULL, since SQLite REAL cannot represent NaN.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    input_draw INTEGER NOT NULL,
    random_seed INTEGER NOT NULL,
    scenario TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(input_draw, random_seed, scenario)
);

CREATE TABLE IF NOT EXISTS run_values (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    value REAL,
    PRIMARY KEY (run_id, key)
);
CREATE INDEX IF NOT EXISTS idx_run_values_key ON run_values(key);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InitSchema creates the results schema if it does not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
