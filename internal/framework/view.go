package framework

import (
	"fmt"
	"time"
)

// PopulationView grants an observer access to a fixed set of columns. Reads
// return snapshots row-aligned to the requested index; writes land on the
// live table immediately, with no buffering, so a column written during a
// prepare hook is visible to every collect hook in the same step.
type PopulationView struct {
	table   *Table
	columns []string
}

// Get returns a snapshot of the view's columns restricted to the given rows.
func (v *PopulationView) Get(index []int) *Snapshot {
	return &Snapshot{table: v.table, allowed: v.columns, rows: index}
}

func (v *PopulationView) has(name string) bool {
	if v.columns == nil {
		return true
	}
	for _, c := range v.columns {
		if c == name {
			return true
		}
	}
	return false
}

// UpdateStrings writes values into the named string column at the given
// rows. values must be aligned to index.
func (v *PopulationView) UpdateStrings(name string, index []int, values []string) error {
	if !v.has(name) {
		return fmt.Errorf("view does not include column %q", name)
	}
	col, err := v.table.Column(name)
	if err != nil {
		return err
	}
	if col.Kind != KindString {
		return fmt.Errorf("column %q is not a string column", name)
	}
	if len(values) != len(index) {
		return fmt.Errorf("update of column %q: %d values for %d rows", name, len(values), len(index))
	}
	for i, row := range index {
		col.Strings[row] = values[i]
	}
	return nil
}

// UpdateFloats writes values into the named float column at the given rows.
func (v *PopulationView) UpdateFloats(name string, index []int, values []float64) error {
	if !v.has(name) {
		return fmt.Errorf("view does not include column %q", name)
	}
	col, err := v.table.Column(name)
	if err != nil {
		return err
	}
	if col.Kind != KindFloat {
		return fmt.Errorf("column %q is not a float column", name)
	}
	if len(values) != len(index) {
		return fmt.Errorf("update of column %q: %d values for %d rows", name, len(values), len(index))
	}
	for i, row := range index {
		col.Floats[row] = values[i]
	}
	return nil
}

// Snapshot is a read-only, row-aligned subset of the population table. Row
// positions within the snapshot are stable: the i-th element of every
// column accessor refers to the same simulant.
type Snapshot struct {
	table   *Table
	allowed []string
	rows    []int
}

// Len returns the number of rows in the snapshot.
func (s *Snapshot) Len() int { return len(s.rows) }

// Rows returns the underlying table row indices.
func (s *Snapshot) Rows() []int { return s.rows }

func (s *Snapshot) column(name string, kind ColumnKind) (*Column, error) {
	allowed := s.allowed == nil
	for _, c := range s.allowed {
		if c == name {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("snapshot does not include column %q", name)
	}
	col, err := s.table.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Kind != kind {
		return nil, fmt.Errorf("column %q has unexpected kind", name)
	}
	return col, nil
}

// Strings returns the named string column aligned to the snapshot's rows.
func (s *Snapshot) Strings(name string) ([]string, error) {
	col, err := s.column(name, KindString)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = col.Strings[row]
	}
	return out, nil
}

// Floats returns the named float column aligned to the snapshot's rows.
func (s *Snapshot) Floats(name string) ([]float64, error) {
	col, err := s.column(name, KindFloat)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(s.rows))
	for i, row := range s.rows {
		out[i] = col.Floats[row]
	}
	return out, nil
}

// Times returns the named timestamp column aligned to the snapshot's rows.
func (s *Snapshot) Times(name string) ([]time.Time, error) {
	col, err := s.column(name, KindTime)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(s.rows))
	for i, row := range s.rows {
		out[i] = col.Times[row]
	}
	return out, nil
}

// Filter returns the sub-snapshot of rows where keep reports true. The
// predicate receives snapshot-relative positions, matching the slices
// returned by the column accessors.
func (s *Snapshot) Filter(keep func(i int) bool) *Snapshot {
	var rows []int
	for i, row := range s.rows {
		if keep(i) {
			rows = append(rows, row)
		}
	}
	return &Snapshot{table: s.table, allowed: s.allowed, rows: rows}
}
