package reshape

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	colPersonTime = "person_time_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colDeath      = "death_due_to_diarrheal_diseases_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colYLLs       = "ylls_due_to_diarrheal_diseases_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colYLDs       = "ylds_due_to_diarrheal_diseases_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colStatePT    = "susceptible_to_diarrheal_diseases_person_time_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colTransition = "susceptible_to_diarrheal_diseases_to_diarrheal_diseases_event_count_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	colBirths     = "live_births_in_2020_among_male_folic_acid_covered_vitamin_a_uncovered"
	colNTD        = "born_with_ntd_in_2020_among_male_folic_acid_covered_vitamin_a_uncovered"
	colBW         = "birth_weight_mean_in_2020_among_male_iron_fortification_group_covered"
	colHb         = "hemoglobin_mean_among_female_at_age_0.5_status_covered_responsive_responsive"
	colAnemia     = "anemia_mild_person_time_in_2020_among_male_in_age_group_under_1"
	colPopulation = "total_population"
)

func sampleValues(scale float64) map[string]float64 {
	return map[string]float64{
		colPersonTime: 10 * scale,
		colDeath:      1 * scale,
		colYLLs:       87 * scale,
		colYLDs:       0.5 * scale,
		colStatePT:    8 * scale,
		colTransition: 2 * scale,
		colBirths:     3 * scale,
		colNTD:        1 * scale,
		colBW:         3000 * scale,
		colHb:         110 * scale,
		colAnemia:     0.5 * scale,
		colPopulation: 100 * scale,
	}
}

func sampleTable(t *testing.T) *WideTable {
	t.Helper()
	table, err := NewWideTable([]Replicate{
		{InputDraw: 0, RandomSeed: 1, Scenario: "baseline", Values: sampleValues(1)},
		{InputDraw: 0, RandomSeed: 2, Scenario: "baseline", Values: sampleValues(2)},
	})
	if err != nil {
		t.Fatalf("NewWideTable: %v", err)
	}
	return table
}

func TestNewWideTable_SchemaMismatch(t *testing.T) {
	short := sampleValues(1)
	delete(short, colBirths)
	_, err := NewWideTable([]Replicate{
		{InputDraw: 0, RandomSeed: 1, Scenario: "baseline", Values: sampleValues(1)},
		{InputDraw: 0, RandomSeed: 2, Scenario: "baseline", Values: short},
	})
	if err == nil {
		t.Fatal("replicates with differing column sets accepted")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		column string
		want   family
	}{
		{colPopulation, familyPopulation},
		{colPersonTime, familyPersonTime},
		{colDeath, familyDeaths},
		{colYLLs, familyYLLs},
		{colYLDs, familyYLDs},
		{colStatePT, familyStatePersonTime},
		{colTransition, familyTransitionCount},
		{colBirths, familyBirths},
		{colNTD, familyBirthsWithNTD},
		{colBW, familyBirthWeight},
		{colHb, familyHemoglobin},
		{colAnemia, familyAnemia},
	}
	for _, tt := range tests {
		got, err := classify(tt.column)
		if err != nil {
			t.Errorf("classify(%q): %v", tt.column, err)
			continue
		}
		if got != tt.want {
			t.Errorf("classify(%q) = %v, want %v", tt.column, got, tt.want)
		}
	}

	if _, err := classify("not_a_result_key"); err == nil {
		t.Error("unclassifiable column accepted")
	}
}

func TestMake(t *testing.T) {
	m, err := Make(sampleTable(t))
	if err != nil {
		t.Fatalf("Make: %v", err)
	}

	// Every family pivots to one row per (replicate × column).
	for _, tbl := range m.Tables() {
		if len(tbl.Rows) != 2 {
			t.Errorf("%s has %d rows, want 2", tbl.Name, len(tbl.Rows))
		}
	}

	deaths := m.Deaths.Rows[0]
	if deaths.Fields["measure"] != "death" || deaths.Fields["cause"] != "diarrheal_diseases" {
		t.Errorf("deaths decoded as measure=%q cause=%q", deaths.Fields["measure"], deaths.Fields["cause"])
	}
	if deaths.Fields["year"] != "2020" || deaths.Fields["sex"] != "male" || deaths.Fields["age_group"] != "under_1" {
		t.Errorf("deaths dimensions decoded as %v", deaths.Fields)
	}

	// State person time normalizes the measure and surfaces the state as a
	// cause.
	spt := m.StatePersonTime.Rows[0]
	if spt.Fields["measure"] != "person_time" {
		t.Errorf("state person time measure = %q, want person_time", spt.Fields["measure"])
	}
	if spt.Fields["cause"] != "susceptible_to_diarrheal_diseases" {
		t.Errorf("state person time cause = %q", spt.Fields["cause"])
	}

	// Births drop the vitamin A group and carry a constant measure.
	births := m.Births.Rows[0]
	if births.Fields["measure"] != "live_births" {
		t.Errorf("births measure = %q", births.Fields["measure"])
	}
	if _, ok := births.Fields["vitamin_a_fortification_group"]; ok {
		t.Error("births kept the vitamin A group field")
	}
	ntd := m.BirthsWithNTD.Rows[0]
	if ntd.Fields["measure"] != "live_births_with_ntds" {
		t.Errorf("ntd births measure = %q", ntd.Fields["measure"])
	}

	if m.HemoglobinLevel.Rows[0].Fields["age"] != "0.5" {
		t.Errorf("hemoglobin age = %q", m.HemoglobinLevel.Rows[0].Fields["age"])
	}
	if m.AnemiaPersonTime.Rows[0].Fields["measure"] != "anemia_mild" {
		t.Errorf("anemia measure = %q", m.AnemiaPersonTime.Rows[0].Fields["measure"])
	}
}

func TestMake_UndecodableColumn(t *testing.T) {
	table, err := NewWideTable([]Replicate{{
		InputDraw: 0, RandomSeed: 1, Scenario: "baseline",
		Values: map[string]float64{"hemoglobin_mean_missing_delimiters": 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Make(table); err == nil {
		t.Fatal("malformed key reshaped without error")
	}
}

func TestLongTable_SortOrder(t *testing.T) {
	tbl := &LongTable{
		Fields: orderFields([]string{"measure", "year", "sex"}),
		Rows: []LongRow{
			{Fields: map[string]string{"year": "2021", "sex": "female", "measure": "a"}, InputDraw: 0},
			{Fields: map[string]string{"year": "2020", "sex": "male", "measure": "a"}, InputDraw: 10},
			{Fields: map[string]string{"year": "2020", "sex": "male", "measure": "a"}, InputDraw: 2},
			{Fields: map[string]string{"year": "2020", "sex": "female", "measure": "a"}, InputDraw: 0},
		},
	}
	tbl.sortRows()

	// Year outranks sex; within equal fields the draw sorts numerically.
	if tbl.Rows[0].Fields["sex"] != "female" || tbl.Rows[0].Fields["year"] != "2020" {
		t.Errorf("first row = %v", tbl.Rows[0].Fields)
	}
	if tbl.Rows[1].InputDraw != 2 || tbl.Rows[2].InputDraw != 10 {
		t.Errorf("draw order = %d, %d; want 2, 10", tbl.Rows[1].InputDraw, tbl.Rows[2].InputDraw)
	}
	if tbl.Rows[3].Fields["year"] != "2021" {
		t.Errorf("last row = %v", tbl.Rows[3].Fields)
	}

	want := []string{"year", "sex", "measure", "input_draw", "scenario", "value"}
	got := tbl.Columns()
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestLongTable_LexicographicFieldOrder(t *testing.T) {
	// Field values are strings even when they look numeric, so "10"
	// sorts before "2". The draw column remains an integer sort.
	tbl := &LongTable{
		Fields: []string{"age"},
		Rows: []LongRow{
			{Fields: map[string]string{"age": "2"}},
			{Fields: map[string]string{"age": "10"}},
			{Fields: map[string]string{"age": "1"}},
		},
	}
	tbl.sortRows()

	got := make([]string, len(tbl.Rows))
	for i, r := range tbl.Rows {
		got[i] = r.Fields["age"]
	}
	want := []string{"1", "10", "2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("age order = %v, want %v", got, want)
		}
	}
}

func TestAggregateOverSeeds(t *testing.T) {
	agg := AggregateOverSeeds(sampleTable(t))
	if len(agg.Rows) != 1 {
		t.Fatalf("got %d aggregated rows, want 1", len(agg.Rows))
	}
	row := agg.Rows[0]

	// Counts sum across seeds.
	if row.Values[colDeath] != 3 {
		t.Errorf("deaths = %v, want 3", row.Values[colDeath])
	}
	if row.Values[colPersonTime] != 30 {
		t.Errorf("person time = %v, want 30", row.Values[colPersonTime])
	}
	// Statistics average across seeds.
	if v := row.Values[colBW]; math.Abs(v-4500) > 1e-9 {
		t.Errorf("birth weight mean = %v, want 4500", v)
	}
	if v := row.Values[colHb]; math.Abs(v-165) > 1e-9 {
		t.Errorf("hemoglobin mean = %v, want 165", v)
	}
}

func TestAggregateOverSeeds_SkipsUnobservedStatistics(t *testing.T) {
	// A seed that never observed a group records NaN for its statistic
	// cells. The seed average runs over the seeds that have a value.
	withNaN := sampleValues(1)
	withNaN[colBW] = math.NaN()
	withNaN[colHb] = math.NaN()
	table, err := NewWideTable([]Replicate{
		{InputDraw: 0, RandomSeed: 1, Scenario: "baseline", Values: sampleValues(1)},
		{InputDraw: 0, RandomSeed: 2, Scenario: "baseline", Values: withNaN},
	})
	if err != nil {
		t.Fatalf("NewWideTable: %v", err)
	}

	row := AggregateOverSeeds(table).Rows[0]
	if v := row.Values[colBW]; math.Abs(v-3000) > 1e-9 {
		t.Errorf("birth weight mean = %v, want 3000", v)
	}
	if v := row.Values[colHb]; math.Abs(v-110) > 1e-9 {
		t.Errorf("hemoglobin mean = %v, want 110", v)
	}
	// Counts are unaffected by statistic gaps.
	if row.Values[colDeath] != 2 {
		t.Errorf("deaths = %v, want 2", row.Values[colDeath])
	}
}

func TestAggregateOverSeeds_AllSeedsUnobserved(t *testing.T) {
	first := sampleValues(1)
	second := sampleValues(2)
	first[colBW] = math.NaN()
	second[colBW] = math.NaN()
	table, err := NewWideTable([]Replicate{
		{InputDraw: 0, RandomSeed: 1, Scenario: "baseline", Values: first},
		{InputDraw: 0, RandomSeed: 2, Scenario: "baseline", Values: second},
	})
	if err != nil {
		t.Fatalf("NewWideTable: %v", err)
	}

	row := AggregateOverSeeds(table).Rows[0]
	if v := row.Values[colBW]; !math.IsNaN(v) {
		t.Errorf("birth weight mean = %v, want NaN", v)
	}
	if v := row.Values[colHb]; math.Abs(v-165) > 1e-9 {
		t.Errorf("hemoglobin mean = %v, want 165", v)
	}
}

func TestKeyspace(t *testing.T) {
	manifest := []byte("input_draw: [0, 1]\nrandom_seed: [1, 2]\nscenario: [baseline]\n")
	k, err := ParseKeyspace(manifest)
	if err != nil {
		t.Fatalf("ParseKeyspace: %v", err)
	}

	table := sampleTable(t) // draw 0, seeds 1 and 2
	missing := k.Missing(table)
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want the two draw-1 replicates", missing)
	}
	for _, id := range missing {
		if id.InputDraw != 1 {
			t.Errorf("unexpected missing replicate %v", id)
		}
	}
	if err := k.CheckComplete(table); err == nil {
		t.Error("incomplete table passed completeness check")
	}

	complete, err := ParseKeyspace([]byte("input_draw: [0]\nrandom_seed: [1, 2]\nscenario: [baseline]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := complete.CheckComplete(table); err != nil {
		t.Errorf("complete table failed completeness check: %v", err)
	}
}

func TestParseKeyspace_Strict(t *testing.T) {
	if _, err := ParseKeyspace([]byte("input_draw: [0]\nrandom_seed: [1]\nscenario: [baseline]\nbogus: 1\n")); err == nil {
		t.Error("manifest with unknown key accepted")
	}
	if _, err := ParseKeyspace([]byte("input_draw: [0]\nrandom_seed: []\nscenario: [baseline]\n")); err == nil {
		t.Error("manifest with empty seed list accepted")
	}
}

func TestDump(t *testing.T) {
	m, err := Make(sampleTable(t))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := m.Dump(dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "deaths.csv"))
	if err != nil {
		t.Fatalf("reading deaths.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("deaths.csv has %d lines, want header plus 2 rows", len(lines))
	}
	header := lines[0]
	for _, col := range []string{"year", "cause", "measure", "input_draw", "scenario", "value"} {
		if !strings.Contains(header, col) {
			t.Errorf("header %q missing column %s", header, col)
		}
	}
	if !strings.Contains(lines[1], "diarrheal_diseases") {
		t.Errorf("first data row %q missing decoded cause", lines[1])
	}

	for _, name := range []string{"population", "births", "hemoglobin_level", "anemia_state_person_time"} {
		if _, err := os.Stat(filepath.Join(dir, name+".csv")); err != nil {
			t.Errorf("expected output %s.csv: %v", name, err)
		}
	}
}
