package reshape

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Dump writes every tidy table as <name>.csv under dir, one file per
// measure family.
func (m *MeasureData) Dump(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, t := range m.Tables() {
		if err := t.WriteCSV(filepath.Join(dir, t.Name+".csv")); err != nil {
			return err
		}
	}
	return nil
}

// schema builds the arrow schema for the table: string dimension columns,
// integer draw, string scenario, float value.
func (t *LongTable) schema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Fields)+3)
	for _, f := range t.Fields {
		fields = append(fields, arrow.Field{Name: f, Type: arrow.BinaryTypes.String})
	}
	fields = append(fields,
		arrow.Field{Name: "input_draw", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "scenario", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	)
	return arrow.NewSchema(fields, nil)
}

// record builds one arrow record holding the whole table.
func (t *LongTable) record(schema *arrow.Schema) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for _, row := range t.Rows {
		for i, f := range t.Fields {
			b.Field(i).(*array.StringBuilder).Append(row.Fields[f])
		}
		n := len(t.Fields)
		b.Field(n).(*array.Int64Builder).Append(int64(row.InputDraw))
		b.Field(n + 1).(*array.StringBuilder).Append(row.Scenario)
		b.Field(n + 2).(*array.Float64Builder).Append(row.Value)
	}
	return b.NewRecord()
}

// WriteCSV writes the tidy table to path with a header row. NaN
// placeholder values are written as "NaN", keeping empty groups visible.
func (t *LongTable) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	schema := t.schema()
	w := csv.NewWriter(f, schema, csv.WithHeader(true))
	rec := t.record(schema)
	defer rec.Release()

	if err := w.Write(rec); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}
