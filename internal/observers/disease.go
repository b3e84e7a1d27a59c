package observers

import (
	"fmt"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// DiseaseObserver observes one cause's state person time and transition
// counts. During the prepare phase it accrues person time for every state
// over the elapsed step and records each simulant's current state into the
// shadow previous-state column; during the collect phase it counts
// transitions by comparing that one-step-lagged column against the current
// state. Correctness depends on the host's barrier between the two phases.
//
// A step spanning a calendar-year boundary is attributed entirely to the
// step's start year. This matches the historical output semantics and is
// deliberate, not an oversight.
type DiseaseObserver struct {
	model DiseaseModel
	cfg   keys.Config
	bins  *stratify.AgeBins
	fort  *stratify.FortificationStratifier

	view       *framework.PopulationView
	prevColumn string

	counts     metrics.Counter
	personTime metrics.Counter
}

// NewDiseaseObserver builds the observer over pop for the given disease
// model. The shadow previous-state column is created on the table if
// missing, initialized empty. fort may be nil to disable fortification
// stratification; bins may be nil when cfg.ByAge is false.
func NewDiseaseObserver(pop *framework.Table, model DiseaseModel, cfg keys.Config,
	bins *stratify.AgeBins, fort *stratify.FortificationStratifier) (*DiseaseObserver, error) {

	if err := model.Validate(); err != nil {
		return nil, err
	}
	if cfg.ByAge && bins == nil {
		return nil, fmt.Errorf("disease observer for %s stratifies by age but has no age bins", model.Name)
	}

	prev := PreviousStateColumn(model.Name)
	if !pop.HasColumn(prev) {
		if err := pop.AddColumn(framework.ConstStringColumn(prev, "", pop.Len())); err != nil {
			return nil, err
		}
	}

	columns := []string{ColumnAlive, model.Name, prev}
	if cfg.BySex {
		columns = append(columns, ColumnSex)
	}
	if cfg.ByAge {
		columns = append(columns, ColumnAge)
	}
	if fort != nil {
		columns = append(columns, fort.FolicAcidColumn, fort.ExposureColumn, fort.StartColumn, fort.AgeColumn)
	}
	view, err := pop.View(dedup(columns)...)
	if err != nil {
		return nil, err
	}

	return &DiseaseObserver{
		model:      model,
		cfg:        cfg,
		bins:       bins,
		fort:       fort,
		view:       view,
		prevColumn: prev,
		counts:     metrics.Counter{},
		personTime: metrics.Counter{},
	}, nil
}

// Name implements framework.Observer.
func (o *DiseaseObserver) Name() string {
	return "disease_observer." + o.model.Name
}

// OnTimeStepPrepare accrues state person time for the elapsed step and
// records the current state for next step's transition detection.
func (o *DiseaseObserver) OnTimeStepPrepare(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	states, err := pop.Strings(o.model.Name)
	if err != nil {
		return err
	}

	stepYears := ev.Years()
	year := ev.Time.Year()
	for _, state := range o.model.States {
		state := state
		inState := pop.Filter(func(i int) bool {
			return alive[i] == StateAlive && states[i] == state
		})
		partial, err := fortifiedGroupCounts(inState, o.cfg, o.bins, o.fort,
			state+"_person_time", year, personTime(stepYears))
		if err != nil {
			return err
		}
		o.personTime.Update(partial)
	}

	// Record the current state so transitions can be detected at collect
	// time. The column is only ever read one step after it is written.
	return o.view.UpdateStrings(o.prevColumn, ev.Index, states)
}

// OnCollectMetrics counts this step's transitions per declared transition.
func (o *DiseaseObserver) OnCollectMetrics(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	prev, err := pop.Strings(o.prevColumn)
	if err != nil {
		return err
	}
	cur, err := pop.Strings(o.model.Name)
	if err != nil {
		return err
	}

	year := ev.Time.Year()
	for _, tr := range o.model.Transitions {
		tr := tr
		moved := pop.Filter(func(i int) bool {
			return prev[i] == tr.From && cur[i] == tr.To
		})
		partial, err := fortifiedGroupCounts(moved, o.cfg, o.bins, o.fort, tr.Measure(), year, count)
		if err != nil {
			return err
		}
		o.counts.Update(partial)
	}
	return nil
}

// Metrics merges the observer's accumulated totals into the results row.
func (o *DiseaseObserver) Metrics(results map[string]float64) map[string]float64 {
	results = o.counts.Merge(results)
	return o.personTime.Merge(results)
}

// dedup removes duplicate column names, preserving first occurrence order.
func dedup(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := columns[:0]
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
