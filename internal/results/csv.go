package results

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/healthsim/stratify/internal/reshape"
)

const (
	colInputDraw  = "input_draw"
	colRandomSeed = "random_seed"
	colScenario   = "scenario"
)

// WriteWideCSV exports the wide table: one row per replicate, run metadata
// first, then every value column in the table's column order.
func WriteWideCSV(path string, t *reshape.WideTable) error {
	fields := []arrow.Field{
		{Name: colInputDraw, Type: arrow.PrimitiveTypes.Int64},
		{Name: colRandomSeed, Type: arrow.PrimitiveTypes.Int64},
		{Name: colScenario, Type: arrow.BinaryTypes.String},
	}
	for _, c := range t.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64})
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for _, row := range t.Rows {
		b.Field(0).(*array.Int64Builder).Append(int64(row.InputDraw))
		b.Field(1).(*array.Int64Builder).Append(int64(row.RandomSeed))
		b.Field(2).(*array.StringBuilder).Append(row.Scenario)
		for i, c := range t.Columns {
			b.Field(3 + i).(*array.Float64Builder).Append(row.Values[c])
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f, schema, csv.WithHeader(true))
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

// ReadWideCSV imports a wide table from CSV. The file must carry a header
// with the three run metadata columns; every other column is a value
// column.
func ReadWideCSV(path string) (*reshape.WideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewInferringReader(f, csv.WithHeader(true), csv.WithChunk(1024))
	defer r.Release()

	var rows []reshape.Replicate
	for r.Next() {
		rec := r.Record()
		schema := rec.Schema()
		n := int(rec.NumRows())

		batch := make([]reshape.Replicate, n)
		for i := range batch {
			batch[i].Values = make(map[string]float64)
		}
		for col := 0; col < int(rec.NumCols()); col++ {
			name := schema.Field(col).Name
			for i := 0; i < n; i++ {
				switch name {
				case colInputDraw:
					v, err := intCell(rec.Column(col), i)
					if err != nil {
						return nil, fmt.Errorf("%s: column %s: %w", path, name, err)
					}
					batch[i].InputDraw = int(v)
				case colRandomSeed:
					v, err := intCell(rec.Column(col), i)
					if err != nil {
						return nil, fmt.Errorf("%s: column %s: %w", path, name, err)
					}
					batch[i].RandomSeed = int(v)
				case colScenario:
					s, ok := rec.Column(col).(*array.String)
					if !ok {
						return nil, fmt.Errorf("%s: column %s is not a string column", path, name)
					}
					batch[i].Scenario = s.Value(i)
				default:
					v, err := floatCell(rec.Column(col), i)
					if err != nil {
						return nil, fmt.Errorf("%s: column %s: %w", path, name, err)
					}
					batch[i].Values[name] = v
				}
			}
		}
		rows = append(rows, batch...)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return reshape.NewWideTable(rows)
}

// intCell reads an integer cell; the inferring reader may widen an
// all-integer column to int64 or, with decimals present, to float64.
func intCell(col arrow.Array, i int) (int64, error) {
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Float64:
		return int64(a.Value(i)), nil
	default:
		return 0, fmt.Errorf("unexpected column type %s", col.DataType())
	}
}

func floatCell(col arrow.Array, i int) (float64, error) {
	switch a := col.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Int64:
		return float64(a.Value(i)), nil
	default:
		return 0, fmt.Errorf("unexpected column type %s", col.DataType())
	}
}
