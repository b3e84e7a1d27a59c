package simulation

import (
	"testing"
	"time"

	"github.com/healthsim/stratify/internal/config"
	"github.com/healthsim/stratify/internal/framework"
)

// ConstPipeline returns a pipeline yielding the same value for every row,
// in both raw and post-processed modes.
func ConstPipeline(v float64) framework.Pipeline {
	return framework.PipelineFunc(func(rows []int, _ bool) []float64 {
		out := make([]float64, len(rows))
		for i := range out {
			out[i] = v
		}
		return out
	})
}

// ColumnPipeline returns a pipeline reading a float column off the table by
// row. Mutations to the column between steps are visible on the next read.
func ColumnPipeline(t *testing.T, pop *framework.Table, name string) framework.Pipeline {
	t.Helper()
	col, err := pop.Column(name)
	if err != nil {
		t.Fatalf("ColumnPipeline(%s): %v", name, err)
	}
	return framework.PipelineFunc(func(rows []int, _ bool) []float64 {
		out := make([]float64, len(rows))
		for i, row := range rows {
			out[i] = col.Floats[row]
		}
		return out
	})
}

// SetFloat writes one cell of a float column. Use from Mutate hooks.
func SetFloat(t *testing.T, pop *framework.Table, column string, row int, v float64) {
	t.Helper()
	col, err := pop.Column(column)
	if err != nil {
		t.Fatalf("SetFloat(%s): %v", column, err)
	}
	col.Floats[row] = v
}

// SetString writes one cell of a string column. Use from Mutate hooks.
func SetString(t *testing.T, pop *framework.Table, column string, row int, v string) {
	t.Helper()
	col, err := pop.Column(column)
	if err != nil {
		t.Fatalf("SetString(%s): %v", column, err)
	}
	col.Strings[row] = v
}

// SetTime writes one cell of a timestamp column. Use from Mutate hooks.
func SetTime(t *testing.T, pop *framework.Table, column string, row int, v time.Time) {
	t.Helper()
	col, err := pop.Column(column)
	if err != nil {
		t.Fatalf("SetTime(%s): %v", column, err)
	}
	col.Times[row] = v
}

// DefaultScenarioConfig builds a validated config with an under-five age
// bin table, a two-state diarrheal disease model, and a flat life
// expectancy table. Scenarios tweak the result before running.
func DefaultScenarioConfig(t *testing.T, start, end time.Time, stepDays float64) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Time = config.TimeConfig{Start: start, End: end, StepDays: stepDays}
	cfg.AgeBins = []config.AgeBinConfig{
		{Name: "early_neonatal", Start: 0, End: 0.019178},
		{Name: "late_neonatal", Start: 0.019178, End: 0.076712},
		{Name: "post_neonatal", Start: 0.076712, End: 1},
		{Name: "1_to_4", Start: 1, End: 5},
	}
	cfg.Diseases = []config.DiseaseConfig{
		{
			Name:   "diarrheal_diseases",
			States: []string{"susceptible_to_diarrheal_diseases", "diarrheal_diseases"},
			Transitions: []config.TransitionConfig{
				{From: "susceptible_to_diarrheal_diseases", To: "diarrheal_diseases"},
				{From: "diarrheal_diseases", To: "susceptible_to_diarrheal_diseases"},
			},
		},
	}
	cfg.Mortality = config.MortalityConfig{
		Causes: []string{"diarrheal_diseases", "other_causes"},
		LifeExpectancy: []config.LifeExpectancyPoint{
			{Age: 0, Value: 88.5},
			{Age: 1, Value: 87.5},
			{Age: 5, Value: 83.5},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultScenarioConfig: %v", err)
	}
	return cfg
}

// WithFortification wires the fortification stratifier onto cfg using the
// harness's standard column names.
func WithFortification(t *testing.T, cfg *config.Config) *config.Config {
	t.Helper()
	cfg.Fortification = &config.FortificationConfig{
		FolicAcidColumn:     "folic_acid_fortification_group",
		VitaminAColumn:      "vitamin_a_exposure",
		VitaminAHigh:        "cat2",
		CoverageStartColumn: "vitamin_a_coverage_start",
		AgeColumn:           "age",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("WithFortification: %v", err)
	}
	return cfg
}
