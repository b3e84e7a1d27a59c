// Package observers implements the result-observation components invoked by
// the host simulation. Each observer variant reads a view of the population
// table at defined event points, partitions it with the stratifiers, names
// its outputs with the key codec, and accumulates into its own counters.
// All variants share one skeleton (prepare hook, collect hook, metrics
// merge); they differ in what statistic they compute and which columns they
// require.
package observers

import (
	"fmt"

	"github.com/healthsim/stratify/internal/keys"
)

// Well-known population columns shared across observers.
const (
	ColumnAlive        = "alive"
	ColumnSex          = "sex"
	ColumnAge          = "age"
	ColumnTracked      = "tracked"
	ColumnEntranceTime = "entrance_time"
	ColumnExitTime     = "exit_time"
	ColumnCauseOfDeath = "cause_of_death"
	ColumnBirthWeight  = "birth_weight"
	ColumnIronGroup    = "iron_fortification_group"
	ColumnIronResponse = "iron_responsiveness"
	ColumnTotalYLDs    = "years_lived_with_disability"
)

// Population state values for the alive and tracked columns.
const (
	StateAlive     = "alive"
	StateDead      = "dead"
	StateTracked   = "tracked"
	StateUntracked = "untracked"
)

// IronGroups is the maternal iron fortification category set.
var IronGroups = []string{Covered, Uncovered}

// IronResponses is the iron treatment responsiveness category set.
var IronResponses = []string{"responsive", "non_responsive"}

const (
	// Covered and Uncovered mirror the stratify package's coverage
	// categories for columns read directly off the population.
	Covered   = "covered"
	Uncovered = "uncovered"
)

// Transition is a directed move between two disease states.
type Transition struct {
	From string
	To   string
}

// Measure returns the transition's event count measure name.
func (t Transition) Measure() string {
	return t.From + "_to_" + t.To + "_event_count"
}

// DiseaseModel names one cause's state space and transitions. It replaces
// the module-level disease map of older observation code with an explicit
// value passed at observer construction, scoped to one run.
type DiseaseModel struct {
	Name        string
	States      []string
	Transitions []Transition
}

// Validate checks the model is usable: non-empty state space, transitions
// over declared states, and category values free of key delimiters.
func (m DiseaseModel) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("disease model has no name")
	}
	if err := keys.ValidateCategory(m.Name); err != nil {
		return fmt.Errorf("disease model %s: %w", m.Name, err)
	}
	if len(m.States) == 0 {
		return fmt.Errorf("disease model %s has no states", m.Name)
	}
	declared := make(map[string]bool, len(m.States))
	for _, s := range m.States {
		if err := keys.ValidateCategory(s); err != nil {
			return fmt.Errorf("disease model %s: %w", m.Name, err)
		}
		declared[s] = true
	}
	for _, t := range m.Transitions {
		if !declared[t.From] || !declared[t.To] {
			return fmt.Errorf("disease model %s: transition %s -> %s references an undeclared state",
				m.Name, t.From, t.To)
		}
	}
	return nil
}

// PreviousStateColumn is the shadow column a disease observer maintains for
// transition detection. It is written during the prepare phase and read
// back exactly one step later.
func PreviousStateColumn(disease string) string {
	return "previous_" + disease
}
