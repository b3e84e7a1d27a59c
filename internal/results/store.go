// Package results persists per-replicate simulation output and reloads it
// as the concatenated wide table the reshaper consumes.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/healthsim/stratify/internal/reshape"
)

// Store writes one row per simulation replicate to SQLite and reads the
// whole run back as a wide table.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates or opens a results database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// WriteRow inserts or replaces one replicate's output row. Writing the
// same (draw, seed, scenario) twice replaces the earlier values wholesale.
func (s *Store) WriteRow(ctx context.Context, rep reshape.Replicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (input_draw, random_seed, scenario, created_at)
		VALUES (?, ?, ?, ?)
	`, rep.InputDraw, rep.RandomSeed, rep.Scenario, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_values WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear previous values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_values (run_id, key, value) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare value insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range rep.Values {
		if _, err := stmt.ExecContext(ctx, runID, key, nullFloat(value)); err != nil {
			return fmt.Errorf("failed to insert value %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// LoadWide reads every persisted replicate and assembles the wide table.
func (s *Store) LoadWide(ctx context.Context) (*reshape.WideTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input_draw, random_seed, scenario FROM runs
		ORDER BY input_draw, random_seed, scenario
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	type run struct {
		id  int64
		rep reshape.Replicate
	}
	var runs []run
	for rows.Next() {
		var r run
		if err := rows.Scan(&r.id, &r.rep.InputDraw, &r.rep.RandomSeed, &r.rep.Scenario); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	replicates := make([]reshape.Replicate, 0, len(runs))
	for _, r := range runs {
		values, err := s.loadValues(ctx, r.id)
		if err != nil {
			return nil, err
		}
		r.rep.Values = values
		replicates = append(replicates, r.rep)
	}
	if len(replicates) == 0 {
		return nil, fmt.Errorf("results database %s holds no runs", s.path)
	}
	return reshape.NewWideTable(replicates)
}

func (s *Store) loadValues(ctx context.Context, runID int64) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM run_values WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query values for run %d: %w", runID, err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key string
		var value sql.NullFloat64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		if value.Valid {
			values[key] = value.Float64
		} else {
			values[key] = math.NaN()
		}
	}
	return values, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullFloat maps NaN to NULL for storage; LoadWide maps it back.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
