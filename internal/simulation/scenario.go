package simulation

import (
	"time"

	"github.com/healthsim/stratify/internal/config"
	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/reshape"
)

// ColumnHemoglobin is the population column the harness creates for raw
// hemoglobin exposure, in g/L.
const ColumnHemoglobin = "hemoglobin"

// Scenario defines a complete observation experiment: a configured run, a
// starting cohort, and an optional per-step mutation standing in for the
// host's transition models.
type Scenario struct {
	Name   string
	Config *config.Config
	Cohort []PersonSpec

	// NTDState names the disease column whose with-condition state flags a
	// neural tube defect at birth. Empty disables the defect birth family.
	NTDState string

	// DisabilityWeights maps cause of disability to a constant weight.
	// Empty skips the disability observer.
	DisabilityWeights map[string]float64

	// Hemoglobin enables the hemoglobin and anemia observers over the
	// cohort's hemoglobin column.
	Hemoglobin bool

	// Replicate metadata stamped onto the output row.
	InputDraw    int
	RandomSeed   int
	ScenarioName string // defaults to "baseline"

	// Mutate, when non-nil, runs between the prepare and collect phases of
	// each step. Use it to move simulants between states, kill them, or
	// shift their hemoglobin mid-run.
	Mutate func(step int, pop *framework.Table)
}

// PersonSpec is a flat builder for one simulant row. Zero values get
// sensible defaults via applyDefaults: alive, tracked, not dead of
// anything, uncovered by every intervention.
type PersonSpec struct {
	Sex          string
	Age          float64
	Alive        string
	Tracked      string
	EntranceTime time.Time
	ExitTime     time.Time
	CauseOfDeath string

	// States maps disease column name to this simulant's starting state.
	// Diseases declared in the config but absent here start in the model's
	// first state.
	States map[string]string

	BirthWeight  float64
	IronGroup    string
	IronResponse string
	Hemoglobin   float64

	// Fortification exposure, read only when the config wires the
	// fortification stratifier.
	FolicAcid        string
	VitaminAExposure string
	CoverageStart    time.Time
}

// applyDefaults fills unset categorical fields.
func (p PersonSpec) applyDefaults() PersonSpec {
	if p.Sex == "" {
		p.Sex = "female"
	}
	if p.Alive == "" {
		p.Alive = "alive"
	}
	if p.Tracked == "" {
		p.Tracked = "tracked"
	}
	if p.CauseOfDeath == "" {
		p.CauseOfDeath = "not_dead"
	}
	if p.IronGroup == "" {
		p.IronGroup = "uncovered"
	}
	if p.IronResponse == "" {
		p.IronResponse = "non_responsive"
	}
	if p.FolicAcid == "" {
		p.FolicAcid = "uncovered"
	}
	return p
}

// RunResult captures everything a run produced: the flat results row, the
// replicate wrapper the persistence and reshaping layers consume, and the
// final population state.
type RunResult struct {
	Results    map[string]float64
	Replicate  reshape.Replicate
	Population *framework.Table
	Steps      int
}
