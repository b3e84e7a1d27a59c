// Package framework defines the contract between observers and the host
// simulation: a column-oriented population table, row-aligned views,
// per-step events, value pipelines, and a step loop that guarantees every
// prepare hook completes before any collect hook runs. The engine here is a
// reference host, sufficient to drive observers in tests and examples; a
// production scheduler only needs to honor the same contracts.
package framework

import (
	"fmt"
	"time"
)

// ColumnKind discriminates the value slice a Column carries.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindFloat
	KindTime
)

// Column holds one named attribute for every simulant in a Table. Exactly
// one value slice is populated, matching Kind.
type Column struct {
	Name    string
	Kind    ColumnKind
	Strings []string
	Floats  []float64
	Times   []time.Time
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindString:
		return len(c.Strings)
	case KindFloat:
		return len(c.Floats)
	case KindTime:
		return len(c.Times)
	}
	return 0
}

// StringColumn builds a string column.
func StringColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: values}
}

// FloatColumn builds a float column.
func FloatColumn(name string, values []float64) *Column {
	return &Column{Name: name, Kind: KindFloat, Floats: values}
}

// TimeColumn builds a timestamp column.
func TimeColumn(name string, values []time.Time) *Column {
	return &Column{Name: name, Kind: KindTime, Times: values}
}

// ConstStringColumn builds a string column repeating value n times.
func ConstStringColumn(name, value string, n int) *Column {
	values := make([]string, n)
	for i := range values {
		values[i] = value
	}
	return StringColumn(name, values)
}

// Table is the population state table: one row per simulant, one column per
// named attribute. Observers read row-aligned views of it; the only
// sanctioned writes are the shadow previous-state columns and cumulative
// totals observers maintain through PopulationView.Update*.
type Table struct {
	cols map[string]*Column
	n    int
}

// NewTable creates a table for n simulants.
func NewTable(n int) *Table {
	return &Table{cols: make(map[string]*Column), n: n}
}

// Len returns the number of simulants.
func (t *Table) Len() int { return t.n }

// Index returns the full row index set, 0..Len-1.
func (t *Table) Index() []int {
	idx := make([]int, t.n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// AddColumn registers a column. The column length must match the table.
func (t *Table) AddColumn(c *Column) error {
	if c.Len() != t.n {
		return fmt.Errorf("column %q has %d values, table has %d rows", c.Name, c.Len(), t.n)
	}
	if _, ok := t.cols[c.Name]; ok {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	t.cols[c.Name] = c
	return nil
}

// Column returns the named column or an error if it is missing. Missing
// required columns are fatal to the run; callers must propagate the error.
func (t *Table) Column(name string) (*Column, error) {
	c, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("population table has no column %q", name)
	}
	return c, nil
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// View builds a population view over the named columns, verifying each one
// exists up front so schema problems surface at observer setup. With no
// column names, the view spans every column.
func (t *Table) View(columns ...string) (*PopulationView, error) {
	for _, name := range columns {
		if _, ok := t.cols[name]; !ok {
			return nil, fmt.Errorf("population table has no column %q", name)
		}
	}
	if len(columns) == 0 {
		columns = nil
	}
	return &PopulationView{table: t, columns: columns}, nil
}
