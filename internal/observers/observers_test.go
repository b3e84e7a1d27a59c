package observers

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/stratify"
)

var (
	simStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	simEnd   = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
)

const yearStep = 24 * time.Hour * 36525 / 100

func addColumns(t *testing.T, tbl *framework.Table, cols ...*framework.Column) {
	t.Helper()
	for _, c := range cols {
		if err := tbl.AddColumn(c); err != nil {
			t.Fatalf("AddColumn(%s): %v", c.Name, err)
		}
	}
}

func constTimes(v time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func event(at time.Time, step time.Duration, tbl *framework.Table) *framework.Event {
	return &framework.Event{Time: at, StepSize: step, Index: tbl.Index()}
}

func diarrheaModel() DiseaseModel {
	return DiseaseModel{
		Name:   "diarrheal_diseases",
		States: []string{"susceptible_to_diarrheal_diseases", "diarrheal_diseases"},
		Transitions: []Transition{
			{From: "susceptible_to_diarrheal_diseases", To: "diarrheal_diseases"},
			{From: "diarrheal_diseases", To: "susceptible_to_diarrheal_diseases"},
		},
	}
}

func TestDiseaseModel_Validate(t *testing.T) {
	if err := diarrheaModel().Validate(); err != nil {
		t.Errorf("valid model rejected: %v", err)
	}

	bad := DiseaseModel{Name: "x", States: []string{"a"}, Transitions: []Transition{{From: "a", To: "b"}}}
	if err := bad.Validate(); err == nil {
		t.Error("model with undeclared transition state accepted")
	}

	reserved := DiseaseModel{Name: "x", States: []string{"born_in_spring"}}
	if err := reserved.Validate(); err == nil {
		t.Error("state containing a key delimiter accepted")
	}
}

// TestDiseaseObserver_PersonTimeConservation checks that a closed cohort
// with no entrances or exits accrues exactly cohort size × elapsed years of
// person time, regardless of how often it transitions between states.
func TestDiseaseObserver_PersonTimeConservation(t *testing.T) {
	const n = 4
	model := diarrheaModel()

	tbl := framework.NewTable(n)
	states := make([]string, n)
	for i := range states {
		states[i] = model.States[0]
	}
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, n),
		framework.StringColumn(model.Name, states),
	)

	obs, err := NewDiseaseObserver(tbl, model, keys.Config{}, nil, nil)
	if err != nil {
		t.Fatalf("NewDiseaseObserver: %v", err)
	}

	end := simStart.Add(2 * yearStep)
	eng, err := framework.NewEngine(tbl, simStart, end, yearStep/4, nil)
	if err != nil {
		t.Fatal(err)
	}
	eng.Register(obs)
	// Churn simulant 0 between states every step; conservation must hold.
	eng.Mutate = func(step int, pop *framework.Table) {
		col, err := pop.Column(model.Name)
		if err != nil {
			t.Fatal(err)
		}
		if col.Strings[0] == model.States[0] {
			col.Strings[0] = model.States[1]
		} else {
			col.Strings[0] = model.States[0]
		}
	}

	results, err := eng.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var total float64
	for key, v := range results {
		if strings.HasSuffix(key, "_person_time") {
			total += v
		}
	}
	// Closed cohort over exactly two simulated years.
	want := float64(n) * 2
	if math.Abs(total-want) > 1e-9 {
		t.Errorf("total person time = %v, want %v", total, want)
	}
}

func TestDiseaseObserver_TransitionCounts(t *testing.T) {
	model := diarrheaModel()
	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 3),
		framework.ConstStringColumn(model.Name, model.States[0], 3),
	)

	obs, err := NewDiseaseObserver(tbl, model, keys.Config{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	end := simStart.Add(yearStep / 2)
	eng, err := framework.NewEngine(tbl, simStart, end, yearStep/4, nil)
	if err != nil {
		t.Fatal(err)
	}
	eng.Register(obs)
	eng.Mutate = func(step int, pop *framework.Table) {
		if step != 0 {
			return
		}
		col, _ := pop.Column(model.Name)
		col.Strings[0] = model.States[1]
		col.Strings[2] = model.States[1]
	}

	results, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}

	onset := model.Transitions[0].Measure()
	remission := model.Transitions[1].Measure()
	if results[onset] != 2 {
		t.Errorf("%s = %v, want 2", onset, results[onset])
	}
	if results[remission] != 0 {
		t.Errorf("%s = %v, want 0", remission, results[remission])
	}
}

func TestDiseaseObserver_StratifiedKeysAlwaysPresent(t *testing.T) {
	model := diarrheaModel()
	bins, err := stratify.NewAgeBins([]stratify.AgeBin{
		{Name: "under_1", Start: 0, End: 1},
		{Name: "1_to_4", Start: 1, End: 5},
	})
	if err != nil {
		t.Fatal(err)
	}

	tbl := framework.NewTable(2)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 2),
		framework.ConstStringColumn(model.Name, model.States[0], 2),
		framework.StringColumn(ColumnSex, []string{"male", "male"}),
		framework.FloatColumn(ColumnAge, []float64{0.5, 2}),
		framework.ConstStringColumn("folic_acid_fortification_group", "covered", 2),
		framework.ConstStringColumn("vitamin_a_exposure", "cat1", 2),
		framework.TimeColumn("vitamin_a_coverage_start", constTimes(time.Time{}, 2)),
	)

	fort := &stratify.FortificationStratifier{
		FolicAcidColumn: "folic_acid_fortification_group",
		ExposureColumn:  "vitamin_a_exposure",
		HighCategory:    "cat2",
		StartColumn:     "vitamin_a_coverage_start",
		AgeColumn:       ColumnAge,
	}
	cfg := keys.Config{ByYear: true, BySex: true, ByAge: true}
	obs, err := NewDiseaseObserver(tbl, model, cfg, bins, fort)
	if err != nil {
		t.Fatal(err)
	}

	ev := event(simStart, yearStep/4, tbl)
	if err := obs.OnTimeStepPrepare(ev); err != nil {
		t.Fatalf("OnTimeStepPrepare: %v", err)
	}

	results := obs.Metrics(map[string]float64{})
	// Both simulants are female-free, yet every female key must exist, and
	// every fortification cell, with zero where empty.
	wantEmpty := "diarrheal_diseases_person_time_in_2020_among_female_in_age_group_1_to_4_folic_acid_uncovered_vitamin_a_effectively_covered"
	if v, ok := results[wantEmpty]; !ok || v != 0 {
		t.Errorf("empty-group key %q: value %v present %v, want 0 and present", wantEmpty, v, ok)
	}
	wantFull := "susceptible_to_diarrheal_diseases_person_time_in_2020_among_male_in_age_group_under_1_folic_acid_covered_vitamin_a_uncovered"
	if v := results[wantFull]; math.Abs(v-0.25) > 1e-9 {
		t.Errorf("key %q = %v, want 0.25", wantFull, v)
	}

	// Every emitted key must decode under the stratified schema.
	for key := range results {
		if _, err := keys.Decode(key, keys.SchemaStratified); err != nil {
			t.Errorf("emitted key %q does not decode: %v", key, err)
		}
	}
}

func TestBirthObserver_YearlyWindows(t *testing.T) {
	entrances := []time.Time{
		time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 3),
		framework.TimeColumn(ColumnEntranceTime, entrances),
	)

	obs, err := NewBirthObserver(tbl, "", keys.Config{ByYear: true}, nil, simStart, simEnd)
	if err != nil {
		t.Fatal(err)
	}

	// Three yearly collects spanning the run.
	for year := 2021; year <= 2023; year++ {
		ev := event(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), yearStep, tbl)
		if err := obs.OnCollectMetrics(ev); err != nil {
			t.Fatalf("OnCollectMetrics(%d): %v", year, err)
		}
	}

	results := obs.Metrics(map[string]float64{})
	want := map[string]float64{
		"live_births_in_2020": 1,
		"live_births_in_2021": 2,
		"live_births_in_2022": 0,
	}
	for key, v := range want {
		got, ok := results[key]
		if !ok {
			t.Errorf("key %q missing from results", key)
			continue
		}
		if got != v {
			t.Errorf("%s = %v, want %v", key, got, v)
		}
	}
}

func TestBirthObserver_NoDoubleCounting(t *testing.T) {
	entrances := []time.Time{time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)}
	tbl := framework.NewTable(1)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 1),
		framework.TimeColumn(ColumnEntranceTime, entrances),
	)
	obs, err := NewBirthObserver(tbl, "", keys.Config{ByYear: true}, nil, simStart, simEnd)
	if err != nil {
		t.Fatal(err)
	}

	// Monthly collects over 2020: the June entrant counts exactly once.
	for month := 2; month <= 12; month++ {
		ev := event(time.Date(2020, time.Month(month), 1, 0, 0, 0, 0, time.UTC), yearStep/12, tbl)
		if err := obs.OnCollectMetrics(ev); err != nil {
			t.Fatal(err)
		}
	}
	results := obs.Metrics(map[string]float64{})
	if results["live_births_in_2020"] != 1 {
		t.Errorf("live_births_in_2020 = %v, want 1", results["live_births_in_2020"])
	}
}

func TestBirthObserver_NTDSubset(t *testing.T) {
	const ntd = "neural_tube_defects"
	entrances := constTimes(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 3)
	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 3),
		framework.TimeColumn(ColumnEntranceTime, entrances),
		framework.StringColumn(ntd, []string{ntd, "susceptible_to_neural_tube_defects", ntd}),
	)
	obs, err := NewBirthObserver(tbl, ntd, keys.Config{ByYear: true}, nil, simStart, simEnd)
	if err != nil {
		t.Fatal(err)
	}
	ev := event(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), yearStep, tbl)
	if err := obs.OnCollectMetrics(ev); err != nil {
		t.Fatal(err)
	}
	results := obs.Metrics(map[string]float64{})
	if results["live_births_in_2020"] != 3 {
		t.Errorf("live_births_in_2020 = %v, want 3", results["live_births_in_2020"])
	}
	if results["born_with_ntd_in_2020"] != 2 {
		t.Errorf("born_with_ntd_in_2020 = %v, want 2", results["born_with_ntd_in_2020"])
	}
}

func TestMortalityObserver(t *testing.T) {
	le, err := NewLifeExpectancy([]float64{0, 1, 5}, []float64{88, 87, 83})
	if err != nil {
		t.Fatal(err)
	}
	if got := le.At(1.5); got != 87 {
		t.Fatalf("LifeExpectancy.At(1.5) = %v, want 87", got)
	}
	if got := le.At(0); got != 88 {
		t.Fatalf("LifeExpectancy.At(0) = %v, want 88", got)
	}

	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.StringColumn(ColumnAlive, []string{StateAlive, StateDead, StateAlive}),
		framework.ConstStringColumn(ColumnTracked, StateTracked, 3),
		framework.StringColumn(ColumnCauseOfDeath, []string{"", "other_causes", ""}),
		framework.TimeColumn(ColumnExitTime, []time.Time{{}, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), {}}),
		framework.FloatColumn(ColumnAge, []float64{0.5, 1.5, 3}),
	)

	causes := []string{"other_causes", "diarrheal_diseases"}
	obs, err := NewMortalityObserver(tbl, causes, keys.Config{}, nil, nil, le)
	if err != nil {
		t.Fatal(err)
	}

	prepare := event(simStart, yearStep, tbl)
	if err := obs.OnTimeStepPrepare(prepare); err != nil {
		t.Fatal(err)
	}
	collect := event(simStart.AddDate(1, 0, 0), yearStep, tbl)
	if err := obs.OnCollectMetrics(collect); err != nil {
		t.Fatal(err)
	}

	results := obs.Metrics(map[string]float64{})
	if results["death_due_to_other_causes"] != 1 {
		t.Errorf("death_due_to_other_causes = %v, want 1", results["death_due_to_other_causes"])
	}
	if results["death_due_to_diarrheal_diseases"] != 0 {
		t.Errorf("death_due_to_diarrheal_diseases = %v, want 0", results["death_due_to_diarrheal_diseases"])
	}
	if results["ylls_due_to_other_causes"] != 87 {
		t.Errorf("ylls_due_to_other_causes = %v, want 87", results["ylls_due_to_other_causes"])
	}
	if results["years_of_life_lost"] != 87 {
		t.Errorf("years_of_life_lost = %v, want 87", results["years_of_life_lost"])
	}
	if results["total_population_living"] != 2 || results["total_population_dead"] != 1 {
		t.Errorf("population counts: living=%v dead=%v, want 2 and 1",
			results["total_population_living"], results["total_population_dead"])
	}
	// Person time accrued for the two living, tracked simulants only.
	if v := results["person_time"]; math.Abs(v-2) > 1e-9 {
		t.Errorf("person_time = %v, want 2", v)
	}
}

func TestDisabilityObserver(t *testing.T) {
	tbl := framework.NewTable(2)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 2),
		framework.ConstStringColumn(ColumnTracked, StateTracked, 2),
	)

	weight := framework.PipelineFunc(func(rows []int, skipPostProcessor bool) []float64 {
		out := make([]float64, len(rows))
		for i := range out {
			out[i] = 0.2
		}
		return out
	})

	obs, err := NewDisabilityObserver(tbl, map[string]framework.Pipeline{"diarrheal_diseases": weight},
		keys.Config{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !tbl.HasColumn(ColumnTotalYLDs) {
		t.Fatal("observer did not create the running total column")
	}

	ev := event(simStart, yearStep/2, tbl)
	if err := obs.OnTimeStepPrepare(ev); err != nil {
		t.Fatal(err)
	}
	if err := obs.OnTimeStepPrepare(ev); err != nil {
		t.Fatal(err)
	}

	results := obs.Metrics(map[string]float64{})
	if v := results["ylds_due_to_diarrheal_diseases"]; math.Abs(v-0.4) > 1e-9 {
		t.Errorf("ylds_due_to_diarrheal_diseases = %v, want 0.4", v)
	}
	if v := results["years_lived_with_disability"]; math.Abs(v-0.4) > 1e-9 {
		t.Errorf("years_lived_with_disability = %v, want 0.4", v)
	}

	// The running total column holds each simulant's cumulative accrual.
	col, err := tbl.Column(ColumnTotalYLDs)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range col.Floats {
		if math.Abs(v-0.2) > 1e-9 {
			t.Errorf("row %d running total = %v, want 0.2", i, v)
		}
	}
}

func TestBirthWeightObserver(t *testing.T) {
	entrances := []time.Time{
		time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.TimeColumn(ColumnEntranceTime, entrances),
		framework.StringColumn(ColumnSex, []string{"male", "male", "female"}),
		framework.StringColumn(ColumnIronGroup, []string{"covered", "covered", "uncovered"}),
		framework.FloatColumn(ColumnBirthWeight, []float64{3000, 3200, 2800}),
	)

	obs, err := NewBirthWeightObserver(tbl, simStart, simEnd)
	if err != nil {
		t.Fatal(err)
	}
	ev := event(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), yearStep, tbl)
	if err := obs.OnCollectMetrics(ev); err != nil {
		t.Fatal(err)
	}

	results := obs.Metrics(map[string]float64{})
	meanKey := "birth_weight_mean_in_2020_among_male_iron_fortification_group_covered"
	if v := results[meanKey]; math.Abs(v-3100) > 1e-9 {
		t.Errorf("%s = %v, want 3100", meanKey, v)
	}
	sdKey := "birth_weight_sd_in_2020_among_male_iron_fortification_group_covered"
	if v := results[sdKey]; math.Abs(v-math.Sqrt(20000)) > 1e-6 {
		t.Errorf("%s = %v, want %v", sdKey, v, math.Sqrt(20000))
	}

	// Empty groups report the NaN placeholder, never a missing key.
	emptyKey := "birth_weight_mean_in_2021_among_male_iron_fortification_group_covered"
	v, ok := results[emptyKey]
	if !ok {
		t.Fatalf("empty-group key %q missing", emptyKey)
	}
	if !math.IsNaN(v) {
		t.Errorf("%s = %v, want NaN placeholder", emptyKey, v)
	}
}

func TestHemoglobinObserver(t *testing.T) {
	tbl := framework.NewTable(3)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 3),
		framework.FloatColumn(ColumnAge, []float64{0.6, 0.7, 0.8}),
		framework.ConstStringColumn(ColumnSex, "female", 3),
		framework.ConstStringColumn(ColumnIronGroup, "covered", 3),
		framework.ConstStringColumn(ColumnIronResponse, "responsive", 3),
	)

	hb := framework.PipelineFunc(func(rows []int, skipPostProcessor bool) []float64 {
		out := make([]float64, len(rows))
		for i, row := range rows {
			out[i] = 10 + 2*float64(row)
		}
		return out
	})

	obs, err := NewHemoglobinObserver(tbl, hb, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := obs.OnCollectMetrics(event(simStart.AddDate(0, 6, 0), yearStep/2, tbl)); err != nil {
		t.Fatal(err)
	}

	results := obs.Metrics(map[string]float64{})
	meanKey := keys.EncodeHemoglobin("mean", "female", "0.5", "covered", "responsive")
	if v := results[meanKey]; math.Abs(v-12) > 1e-9 {
		t.Errorf("%s = %v, want 12", meanKey, v)
	}
	varKey := keys.EncodeHemoglobin("variance", "female", "0.5", "covered", "responsive")
	if v := results[varKey]; math.Abs(v-8.0/3.0) > 1e-9 {
		t.Errorf("%s = %v, want %v (population variance)", varKey, v, 8.0/3.0)
	}

	// Bands nobody occupies still report their keys, as NaN.
	emptyKey := keys.EncodeHemoglobin("mean", "male", "2", "uncovered", "non_responsive")
	v, ok := results[emptyKey]
	if !ok {
		t.Fatalf("empty-category key %q missing", emptyKey)
	}
	if !math.IsNaN(v) {
		t.Errorf("%s = %v, want NaN placeholder", emptyKey, v)
	}
}

func TestAnemiaObserver(t *testing.T) {
	tbl := framework.NewTable(4)
	addColumns(t, tbl,
		framework.ConstStringColumn(ColumnAlive, StateAlive, 4),
	)

	hb := framework.PipelineFunc(func(rows []int, skipPostProcessor bool) []float64 {
		levels := []float64{60, 85, 105, 120}
		out := make([]float64, len(rows))
		for i, row := range rows {
			out[i] = levels[row]
		}
		return out
	})

	obs, err := NewAnemiaObserver(tbl, hb, DefaultAnemiaThresholds, keys.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := obs.OnTimeStepPrepare(event(simStart, yearStep/2, tbl)); err != nil {
		t.Fatal(err)
	}

	results := obs.Metrics(map[string]float64{})
	for _, severity := range AnemiaSeverities {
		key := "anemia_" + severity + "_person_time"
		if v := results[key]; math.Abs(v-0.5) > 1e-9 {
			t.Errorf("%s = %v, want 0.5", key, v)
		}
	}
}

func TestAnemiaThresholds_Severity(t *testing.T) {
	th := DefaultAnemiaThresholds
	tests := []struct {
		hb   float64
		want string
	}{
		{69.9, "severe"},
		{70, "moderate"},
		{99.9, "moderate"},
		{100, "mild"},
		{109.9, "mild"},
		{110, "none"},
	}
	for _, tt := range tests {
		if got := th.Severity(tt.hb); got != tt.want {
			t.Errorf("Severity(%v) = %q, want %q", tt.hb, got, tt.want)
		}
	}
}

func TestTimeSpans(t *testing.T) {
	spans := TimeSpans(simStart, simEnd, true)
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3: %+v", len(spans), spans)
	}
	labels := []string{"2020", "2021", "2022"}
	for i, want := range labels {
		if spans[i].Label != want {
			t.Errorf("span %d label = %q, want %q", i, spans[i].Label, want)
		}
	}

	all := TimeSpans(simStart, simEnd, false)
	if len(all) != 1 || all[0].Label != "all_years" {
		t.Fatalf("all-time spans = %+v", all)
	}
	if !all[0].Start.Equal(simStart) || !all[0].End.Equal(simEnd) {
		t.Errorf("all-time span bounds = %v..%v", all[0].Start, all[0].End)
	}

	// Mid-year bounds clip the first and last spans.
	start := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	clipped := TimeSpans(start, end, true)
	if len(clipped) != 2 {
		t.Fatalf("got %d clipped spans, want 2", len(clipped))
	}
	if !clipped[0].Start.Equal(start) || !clipped[1].End.Equal(end) {
		t.Errorf("clipped spans = %+v", clipped)
	}
}
