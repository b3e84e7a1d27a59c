// Package reshape turns the concatenated wide output table of a simulation
// run into tidy long-format tables, one per measure family. It is a pure
// batch transform over finished results; nothing here touches simulation
// state.
package reshape

import (
	"fmt"
	"sort"
	"strings"

	"github.com/healthsim/stratify/internal/keys"
)

// Replicate is one row of the wide table: the output of a single simulation
// process, identified by its draw, seed, and scenario.
type Replicate struct {
	InputDraw  int
	RandomSeed int
	Scenario   string
	Values     map[string]float64
}

// WideTable is the concatenation of many replicates' output rows. Every
// replicate must carry exactly the same value columns; the empty-group
// placeholder contract upstream exists precisely so this holds.
type WideTable struct {
	Columns []string
	Rows    []Replicate
}

// NewWideTable validates that all rows share one column set and returns the
// assembled table. A schema mismatch between replicates is fatal.
func NewWideTable(rows []Replicate) (*WideTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("wide table has no rows")
	}
	columns := make([]string, 0, len(rows[0].Values))
	for c := range rows[0].Values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for i, row := range rows[1:] {
		if len(row.Values) != len(columns) {
			return nil, fmt.Errorf("replicate %d has %d columns, expected %d",
				i+1, len(row.Values), len(columns))
		}
		for _, c := range columns {
			if _, ok := row.Values[c]; !ok {
				return nil, fmt.Errorf("replicate %d is missing column %q", i+1, c)
			}
		}
	}
	return &WideTable{Columns: columns, Rows: rows}, nil
}

// LongRow is one observation in a tidy table.
type LongRow struct {
	Fields    map[string]string
	InputDraw int
	Scenario  string
	Value     float64
}

// LongTable is one measure family's tidy output: decoded dimension columns,
// run metadata, and a single value column.
type LongTable struct {
	Name   string
	Fields []string
	Rows   []LongRow
}

// Columns returns the full ordered output header.
func (t *LongTable) Columns() []string {
	out := append([]string{}, t.Fields...)
	return append(out, "input_draw", "scenario", "value")
}

// columnSortOrder is the fixed sort priority for tidy tables. Dimension
// columns a family does not produce are skipped; columns outside this list
// keep their declared order after it.
var columnSortOrder = []string{
	"year",
	"age_group",
	"sex",
	"risk",
	"cause",
	"treatment_group",
	"birth_weight",
	"gestational_age",
	keys.FieldFolicAcid,
	keys.FieldVitaminA,
	"measure",
	"input_draw",
}

// orderFields arranges names by sort priority; names outside the priority
// list follow in their given relative order.
func orderFields(names []string) []string {
	rank := make(map[string]int, len(columnSortOrder))
	for i, c := range columnSortOrder {
		rank[c] = i
	}
	out := append([]string{}, names...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iOK := rank[out[i]]
		rj, jOK := rank[out[j]]
		switch {
		case iOK && jOK:
			return ri < rj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return false
		}
	})
	return out
}

// compareValues orders two column values lexicographically. Decoded fields
// are strings even when they look numeric ("10" sorts before "2"), matching
// the historical tidy-table ordering downstream consumers diff against.
func compareValues(a, b string) int {
	return strings.Compare(a, b)
}

func (t *LongTable) sortRows() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		for _, f := range t.Fields {
			if c := compareValues(a.Fields[f], b.Fields[f]); c != 0 {
				return c < 0
			}
		}
		if a.InputDraw != b.InputDraw {
			return a.InputDraw < b.InputDraw
		}
		return a.Scenario < b.Scenario
	})
}

// MeasureData holds every tidy table produced from one wide table.
type MeasureData struct {
	Population       *LongTable
	PersonTime       *LongTable
	YLLs             *LongTable
	YLDs             *LongTable
	Deaths           *LongTable
	StatePersonTime  *LongTable
	TransitionCount  *LongTable
	Births           *LongTable
	BirthsWithNTD    *LongTable
	BirthWeight      *LongTable
	HemoglobinLevel  *LongTable
	AnemiaPersonTime *LongTable
}

// Tables returns every tidy table in a stable dump order.
func (m *MeasureData) Tables() []*LongTable {
	return []*LongTable{
		m.Population,
		m.PersonTime,
		m.YLLs,
		m.YLDs,
		m.Deaths,
		m.StatePersonTime,
		m.TransitionCount,
		m.Births,
		m.BirthsWithNTD,
		m.BirthWeight,
		m.HemoglobinLevel,
		m.AnemiaPersonTime,
	}
}

// population columns are run-level aggregates reported without any key
// grammar; the column name is the measure.
var populationColumns = map[string]bool{
	"total_population":            true,
	"total_population_living":     true,
	"total_population_dead":       true,
	"total_population_tracked":    true,
	"total_population_untracked":  true,
	"years_of_life_lost":          true,
	"years_lived_with_disability": true,
}

type family int

const (
	familyPopulation family = iota
	familyPersonTime
	familyYLLs
	familyYLDs
	familyDeaths
	familyStatePersonTime
	familyTransitionCount
	familyBirths
	familyBirthsWithNTD
	familyBirthWeight
	familyHemoglobin
	familyAnemia
)

// classify assigns a wide-table column to its measure family. An
// unclassifiable column is an error: the wide table must contain only
// encoded keys and known aggregates.
func classify(column string) (family, error) {
	switch {
	case populationColumns[column]:
		return familyPopulation, nil
	case strings.HasPrefix(column, "person_time"):
		return familyPersonTime, nil
	case strings.HasPrefix(column, "ylls_due_to_"):
		return familyYLLs, nil
	case strings.HasPrefix(column, "ylds_due_to_"):
		return familyYLDs, nil
	case strings.HasPrefix(column, "death_due_to_"):
		return familyDeaths, nil
	case strings.Contains(column, "_event_count"):
		return familyTransitionCount, nil
	case strings.HasPrefix(column, "anemia_"):
		return familyAnemia, nil
	case strings.Contains(column, "_person_time"):
		return familyStatePersonTime, nil
	case strings.HasPrefix(column, "live_births"):
		return familyBirths, nil
	case strings.HasPrefix(column, "born_with_ntd"):
		return familyBirthsWithNTD, nil
	case strings.HasPrefix(column, "birth_weight_"):
		return familyBirthWeight, nil
	case strings.HasPrefix(column, "hemoglobin_"):
		return familyHemoglobin, nil
	default:
		return 0, fmt.Errorf("column %q does not belong to any measure family", column)
	}
}

// decodeColumn turns a wide column name into tidy field values, including
// the measure.
type decodeColumn func(column string) (map[string]string, error)

// pivot builds one tidy table: one output row per (replicate × column).
func pivot(t *WideTable, name string, columns, fields []string, decode decodeColumn) (*LongTable, error) {
	out := &LongTable{Name: name, Fields: orderFields(fields)}
	decoded := make(map[string]map[string]string, len(columns))
	for _, c := range columns {
		d, err := decode(c)
		if err != nil {
			return nil, fmt.Errorf("reshaping %s: %w", name, err)
		}
		decoded[c] = d
	}
	for _, row := range t.Rows {
		for _, c := range columns {
			out.Rows = append(out.Rows, LongRow{
				Fields:    decoded[c],
				InputDraw: row.InputDraw,
				Scenario:  row.Scenario,
				Value:     row.Values[c],
			})
		}
	}
	out.sortRows()
	return out, nil
}

func stratifiedDecoder(schema keys.Schema) decodeColumn {
	return func(column string) (map[string]string, error) {
		d, err := keys.Decode(column, schema)
		if err != nil {
			return nil, err
		}
		fields := d.Fields
		fields[keys.FieldMeasure] = d.Measure
		return fields, nil
	}
}

// statePersonTimeDecoder splits the disease state out of the measure so
// state person time lands in a cause column alongside the other
// cause-dimensioned tables, with a uniform "person_time" measure.
func statePersonTimeDecoder(column string) (map[string]string, error) {
	fields, err := stratifiedDecoder(keys.SchemaStratified)(column)
	if err != nil {
		return nil, err
	}
	state, ok := strings.CutSuffix(fields[keys.FieldMeasure], "_person_time")
	if !ok {
		return nil, fmt.Errorf("state person time column %q lacks the _person_time suffix", column)
	}
	fields[keys.FieldCause] = state
	fields[keys.FieldMeasure] = "person_time"
	return fields, nil
}

// birthsDecoder decodes a birth count column. The vitamin A group is
// dropped: it is not a birth-level dimension, only a carried suffix.
func birthsDecoder(measure string) decodeColumn {
	return func(column string) (map[string]string, error) {
		d, err := keys.Decode(column, keys.SchemaBirths)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			keys.FieldMeasure:   measure,
			keys.FieldYear:      d.Fields[keys.FieldYear],
			keys.FieldSex:       d.Fields[keys.FieldSex],
			keys.FieldFolicAcid: d.Fields[keys.FieldFolicAcid],
		}, nil
	}
}

func populationDecoder(column string) (map[string]string, error) {
	return map[string]string{keys.FieldMeasure: column}, nil
}

var (
	stratifiedFields = []string{keys.FieldMeasure, keys.FieldYear, keys.FieldSex,
		keys.FieldAgeGroup, keys.FieldFolicAcid, keys.FieldVitaminA}
	causeFields = append([]string{keys.FieldCause}, stratifiedFields...)
	birthFields = []string{keys.FieldMeasure, keys.FieldYear, keys.FieldSex, keys.FieldFolicAcid}
)

// Make reshapes the wide table into one tidy table per measure family.
func Make(t *WideTable) (*MeasureData, error) {
	byFamily := make(map[family][]string)
	for _, c := range t.Columns {
		f, err := classify(c)
		if err != nil {
			return nil, err
		}
		byFamily[f] = append(byFamily[f], c)
	}

	m := &MeasureData{}
	var err error

	build := func(dst **LongTable, f family, name string, fields []string, decode decodeColumn) {
		if err != nil {
			return
		}
		*dst, err = pivot(t, name, byFamily[f], fields, decode)
	}

	build(&m.Population, familyPopulation, "population",
		[]string{keys.FieldMeasure}, populationDecoder)
	build(&m.PersonTime, familyPersonTime, "person_time",
		stratifiedFields, stratifiedDecoder(keys.SchemaStratified))
	build(&m.YLLs, familyYLLs, "ylls",
		causeFields, stratifiedDecoder(keys.SchemaStratifiedCause))
	build(&m.YLDs, familyYLDs, "ylds",
		causeFields, stratifiedDecoder(keys.SchemaStratifiedCause))
	build(&m.Deaths, familyDeaths, "deaths",
		causeFields, stratifiedDecoder(keys.SchemaStratifiedCause))
	build(&m.StatePersonTime, familyStatePersonTime, "state_person_time",
		causeFields, statePersonTimeDecoder)
	build(&m.TransitionCount, familyTransitionCount, "transition_count",
		stratifiedFields, stratifiedDecoder(keys.SchemaStratified))
	build(&m.Births, familyBirths, "births",
		birthFields, birthsDecoder("live_births"))
	build(&m.BirthsWithNTD, familyBirthsWithNTD, "births_with_ntd",
		birthFields, birthsDecoder("live_births_with_ntds"))
	build(&m.BirthWeight, familyBirthWeight, "birth_weight",
		[]string{keys.FieldMeasure, keys.FieldYear, keys.FieldSex, keys.FieldIronGroup},
		stratifiedDecoder(keys.SchemaBirthWeight))
	build(&m.HemoglobinLevel, familyHemoglobin, "hemoglobin_level",
		[]string{keys.FieldMeasure, keys.FieldSex, keys.FieldAge, keys.FieldStatus, keys.FieldResponsive},
		stratifiedDecoder(keys.SchemaHemoglobin))
	build(&m.AnemiaPersonTime, familyAnemia, "anemia_state_person_time",
		[]string{keys.FieldMeasure, keys.FieldYear, keys.FieldSex, keys.FieldAgeGroup},
		stratifiedDecoder(keys.SchemaAnemia))
	if err != nil {
		return nil, err
	}
	return m, nil
}
