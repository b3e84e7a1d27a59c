package simulation

import (
	"os"
	"testing"
	"time"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/logging"
	"github.com/healthsim/stratify/internal/observers"
	"github.com/healthsim/stratify/internal/reshape"
)

// Runner orchestrates full observation runs against the real engine and
// observer set.
type Runner struct {
	t     *testing.T
	trace *logging.StepTraceLogger
}

// NewRunner creates a runner whose step traces land in an isolated
// temporary directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) RunResult {
	r.t.Helper()

	cfg := scenario.Config
	if cfg == nil {
		r.t.Fatal("Run: scenario has no config")
	}

	log := logging.NewLogger(cfg.Logging.Level, os.Stderr)
	r.trace = logging.NewStepTraceLogger(r.t.TempDir(), cfg.Logging.Level)
	r.t.Cleanup(r.trace.Close)

	pop := r.buildPopulation(scenario)
	obs := r.buildObservers(scenario, pop)

	eng, err := framework.NewEngine(pop, cfg.Time.Start, cfg.Time.End, cfg.Time.StepSize(), log)
	if err != nil {
		r.t.Fatalf("Run: NewEngine: %v", err)
	}
	eng.Mutate = scenario.Mutate
	eng.Register(obs...)

	step := 0
	for eng.Clock().Before(cfg.Time.End) {
		if err := eng.Step(step); err != nil {
			r.t.Fatalf("Run: step %d: %v", step, err)
		}
		step++
	}

	results := make(map[string]float64)
	for _, o := range obs {
		before := len(results)
		results = o.Metrics(results)
		r.trace.Step(step, o.Name(), len(results)-before)
	}

	name := scenario.ScenarioName
	if name == "" {
		name = "baseline"
	}
	return RunResult{
		Results: results,
		Replicate: reshape.Replicate{
			InputDraw:  scenario.InputDraw,
			RandomSeed: scenario.RandomSeed,
			Scenario:   name,
			Values:     results,
		},
		Population: pop,
		Steps:      step,
	}
}

// buildPopulation materializes the cohort into a column table carrying
// every column the configured observers read.
func (r *Runner) buildPopulation(scenario Scenario) *framework.Table {
	r.t.Helper()

	cfg := scenario.Config
	n := len(scenario.Cohort)
	cohort := make([]PersonSpec, n)
	for i, p := range scenario.Cohort {
		cohort[i] = p.applyDefaults()
	}

	pop := framework.NewTable(n)
	addColumn := func(c *framework.Column) {
		r.t.Helper()
		if err := pop.AddColumn(c); err != nil {
			r.t.Fatalf("buildPopulation: AddColumn(%s): %v", c.Name, err)
		}
	}

	alive := make([]string, n)
	tracked := make([]string, n)
	sexes := make([]string, n)
	ages := make([]float64, n)
	entrances := make([]time.Time, n)
	exits := make([]time.Time, n)
	deathCauses := make([]string, n)
	weights := make([]float64, n)
	ironGroups := make([]string, n)
	ironResponses := make([]string, n)
	for i, p := range cohort {
		alive[i] = p.Alive
		tracked[i] = p.Tracked
		sexes[i] = p.Sex
		ages[i] = p.Age
		entrances[i] = p.EntranceTime
		exits[i] = p.ExitTime
		deathCauses[i] = p.CauseOfDeath
		weights[i] = p.BirthWeight
		ironGroups[i] = p.IronGroup
		ironResponses[i] = p.IronResponse
	}
	addColumn(framework.StringColumn(observers.ColumnAlive, alive))
	addColumn(framework.StringColumn(observers.ColumnTracked, tracked))
	addColumn(framework.StringColumn(observers.ColumnSex, sexes))
	addColumn(framework.FloatColumn(observers.ColumnAge, ages))
	addColumn(framework.TimeColumn(observers.ColumnEntranceTime, entrances))
	addColumn(framework.TimeColumn(observers.ColumnExitTime, exits))
	addColumn(framework.StringColumn(observers.ColumnCauseOfDeath, deathCauses))
	addColumn(framework.FloatColumn(observers.ColumnBirthWeight, weights))
	addColumn(framework.StringColumn(observers.ColumnIronGroup, ironGroups))
	addColumn(framework.StringColumn(observers.ColumnIronResponse, ironResponses))

	// One state column per declared disease, plus the defect column when it
	// is not itself a declared disease.
	stateColumns := make(map[string]string)
	for _, d := range cfg.Diseases {
		stateColumns[d.Name] = d.States[0]
	}
	if scenario.NTDState != "" {
		if _, ok := stateColumns[scenario.NTDState]; !ok {
			stateColumns[scenario.NTDState] = ""
		}
	}
	for column, fallback := range stateColumns {
		states := make([]string, n)
		for i, p := range cohort {
			if s, ok := p.States[column]; ok {
				states[i] = s
			} else {
				states[i] = fallback
			}
		}
		addColumn(framework.StringColumn(column, states))
	}

	if f := cfg.Fortification; f != nil {
		folic := make([]string, n)
		exposure := make([]string, n)
		starts := make([]time.Time, n)
		for i, p := range cohort {
			folic[i] = p.FolicAcid
			exposure[i] = p.VitaminAExposure
			starts[i] = p.CoverageStart
		}
		addColumn(framework.StringColumn(f.FolicAcidColumn, folic))
		addColumn(framework.StringColumn(f.VitaminAColumn, exposure))
		addColumn(framework.TimeColumn(f.CoverageStartColumn, starts))
		if !pop.HasColumn(f.AgeColumn) {
			addColumn(framework.FloatColumn(f.AgeColumn, append([]float64(nil), ages...)))
		}
	}

	if scenario.Hemoglobin {
		hb := make([]float64, n)
		for i, p := range cohort {
			hb[i] = p.Hemoglobin
		}
		addColumn(framework.FloatColumn(ColumnHemoglobin, hb))
	}

	return pop
}

// buildObservers constructs every observer the scenario and config enable.
func (r *Runner) buildObservers(scenario Scenario, pop *framework.Table) []framework.Observer {
	r.t.Helper()

	cfg := scenario.Config
	bins, err := cfg.ToAgeBins()
	if err != nil {
		r.t.Fatalf("buildObservers: age bins: %v", err)
	}
	le, err := cfg.ToLifeExpectancy()
	if err != nil {
		r.t.Fatalf("buildObservers: life expectancy: %v", err)
	}
	fort := cfg.ToStratifier()

	var obs []framework.Observer

	for _, d := range cfg.Diseases {
		o, err := observers.NewDiseaseObserver(pop, d.ToModel(), cfg.Observers.Disease.Keys(), bins, fort)
		if err != nil {
			r.t.Fatalf("buildObservers: disease %s: %v", d.Name, err)
		}
		obs = append(obs, o)
	}

	mo, err := observers.NewMortalityObserver(pop, cfg.Mortality.Causes, cfg.Observers.Mortality.Keys(), bins, fort, le)
	if err != nil {
		r.t.Fatalf("buildObservers: mortality: %v", err)
	}
	obs = append(obs, mo)

	if len(scenario.DisabilityWeights) > 0 {
		pipelines := make(map[string]framework.Pipeline, len(scenario.DisabilityWeights))
		for cause, w := range scenario.DisabilityWeights {
			pipelines[cause] = ConstPipeline(w)
		}
		do, err := observers.NewDisabilityObserver(pop, pipelines, cfg.Observers.Disability.Keys(), bins, fort)
		if err != nil {
			r.t.Fatalf("buildObservers: disability: %v", err)
		}
		obs = append(obs, do)
	}

	bo, err := observers.NewBirthObserver(pop, scenario.NTDState, cfg.Observers.Births.Keys(), fort, cfg.Time.Start, cfg.Time.End)
	if err != nil {
		r.t.Fatalf("buildObservers: births: %v", err)
	}
	obs = append(obs, bo)

	bwo, err := observers.NewBirthWeightObserver(pop, cfg.Time.Start, cfg.Time.End)
	if err != nil {
		r.t.Fatalf("buildObservers: birth weight: %v", err)
	}
	obs = append(obs, bwo)

	if scenario.Hemoglobin {
		hb := ColumnPipeline(r.t, pop, ColumnHemoglobin)
		ho, err := observers.NewHemoglobinObserver(pop, hb, nil)
		if err != nil {
			r.t.Fatalf("buildObservers: hemoglobin: %v", err)
		}
		ao, err := observers.NewAnemiaObserver(pop, hb, cfg.ToAnemiaThresholds(), cfg.Observers.Anemia.Keys(), bins)
		if err != nil {
			r.t.Fatalf("buildObservers: anemia: %v", err)
		}
		obs = append(obs, ho, ao)
	}

	return obs
}
