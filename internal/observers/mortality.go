package observers

import (
	"fmt"
	"sort"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// LifeExpectancy is a stepwise remaining-life-expectancy-by-age lookup
// table. The value for an age is the entry at the greatest tabulated age
// not exceeding it.
type LifeExpectancy struct {
	ages   []float64
	values []float64
}

// NewLifeExpectancy wraps a lookup table. Ages must be ascending and
// aligned with values.
func NewLifeExpectancy(ages, values []float64) (*LifeExpectancy, error) {
	if len(ages) == 0 || len(ages) != len(values) {
		return nil, fmt.Errorf("life expectancy table has %d ages and %d values", len(ages), len(values))
	}
	for i := 1; i < len(ages); i++ {
		if ages[i] <= ages[i-1] {
			return nil, fmt.Errorf("life expectancy ages are not ascending at index %d", i)
		}
	}
	return &LifeExpectancy{ages: ages, values: values}, nil
}

// At returns the remaining life expectancy for an exact age. Ages below the
// first tabulated age use the first entry.
func (l *LifeExpectancy) At(age float64) float64 {
	i := sort.SearchFloat64s(l.ages, age)
	if i < len(l.ages) && l.ages[i] == age {
		return l.values[i]
	}
	if i == 0 {
		return l.values[0]
	}
	return l.values[i-1]
}

// MortalityObserver tracks person time per step plus, at collect time,
// death counts and years of life lost per cause of death. Its metrics merge
// additionally reports aggregate population state counts and the total
// years of life lost across the whole population.
type MortalityObserver struct {
	causes []string
	cfg    keys.Config
	bins   *stratify.AgeBins
	fort   *stratify.FortificationStratifier
	le     *LifeExpectancy

	pop  *framework.Table
	view *framework.PopulationView

	deaths     metrics.Counter
	ylls       metrics.Counter
	personTime metrics.Counter
	totalYLL   float64
}

// NewMortalityObserver builds the observer. causes is the declared cause of
// death category set; every death must carry one of them.
func NewMortalityObserver(pop *framework.Table, causes []string, cfg keys.Config,
	bins *stratify.AgeBins, fort *stratify.FortificationStratifier, le *LifeExpectancy) (*MortalityObserver, error) {

	if len(causes) == 0 {
		return nil, fmt.Errorf("mortality observer has no causes of death")
	}
	for _, c := range causes {
		if err := keys.ValidateCategory(c); err != nil {
			return nil, fmt.Errorf("cause of death: %w", err)
		}
	}
	if cfg.ByAge && bins == nil {
		return nil, fmt.Errorf("mortality observer stratifies by age but has no age bins")
	}
	if le == nil {
		return nil, fmt.Errorf("mortality observer requires a life expectancy table")
	}

	columns := []string{ColumnAlive, ColumnTracked, ColumnCauseOfDeath, ColumnExitTime, ColumnAge}
	if cfg.BySex {
		columns = append(columns, ColumnSex)
	}
	if fort != nil {
		columns = append(columns, fort.FolicAcidColumn, fort.ExposureColumn, fort.StartColumn, fort.AgeColumn)
	}
	view, err := pop.View(dedup(columns)...)
	if err != nil {
		return nil, err
	}

	return &MortalityObserver{
		causes:     causes,
		cfg:        cfg,
		bins:       bins,
		fort:       fort,
		le:         le,
		pop:        pop,
		view:       view,
		deaths:     metrics.Counter{},
		ylls:       metrics.Counter{},
		personTime: metrics.Counter{},
	}, nil
}

// Name implements framework.Observer.
func (o *MortalityObserver) Name() string { return "mortality_observer" }

// OnTimeStepPrepare accrues person time for the tracked living population.
func (o *MortalityObserver) OnTimeStepPrepare(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	tracked, err := pop.Strings(ColumnTracked)
	if err != nil {
		return err
	}
	living := pop.Filter(func(i int) bool {
		return alive[i] == StateAlive && tracked[i] == StateTracked
	})

	partial, err := fortifiedGroupCounts(living, o.cfg, o.bins, o.fort,
		"person_time", ev.Time.Year(), personTime(ev.Years()))
	if err != nil {
		return err
	}
	o.personTime.Update(partial)
	return nil
}

// OnCollectMetrics counts deaths in the elapsed step and accrues years of
// life lost per cause using the life expectancy table.
func (o *MortalityObserver) OnCollectMetrics(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	causes, err := pop.Strings(ColumnCauseOfDeath)
	if err != nil {
		return err
	}
	exits, err := pop.Times(ColumnExitTime)
	if err != nil {
		return err
	}
	ages, err := pop.Floats(ColumnAge)
	if err != nil {
		return err
	}

	stepStart := ev.Time.Add(-ev.StepSize)
	perRowYLL := make(map[int]float64)
	for i, row := range pop.Rows() {
		perRowYLL[row] = o.le.At(ages[i])
	}

	year := ev.Time.Year()
	for _, cause := range o.causes {
		cause := cause
		died := pop.Filter(func(i int) bool {
			return alive[i] == StateDead && causes[i] == cause &&
				!exits[i].Before(stepStart) && exits[i].Before(ev.Time)
		})

		deaths, err := fortifiedGroupCounts(died, o.cfg, o.bins, o.fort,
			"death_due_to_"+cause, year, count)
		if err != nil {
			return err
		}
		o.deaths.Update(deaths)

		ylls, err := fortifiedGroupCounts(died, o.cfg, o.bins, o.fort,
			"ylls_due_to_"+cause, year, sumOver(perRowYLL))
		if err != nil {
			return err
		}
		o.ylls.Update(ylls)
		for _, v := range ylls {
			o.totalYLL += v
		}
	}
	return nil
}

// Metrics merges accumulated deaths, person time, and years of life lost,
// plus aggregate population state counts read from the final table state.
func (o *MortalityObserver) Metrics(results map[string]float64) map[string]float64 {
	results = o.deaths.Merge(results)
	results = o.ylls.Merge(results)
	results = o.personTime.Merge(results)
	results["years_of_life_lost"] = o.totalYLL

	// Aggregate population state counts reflect the final table state.
	all := o.view.Get(o.pop.Index())
	alive, err := all.Strings(ColumnAlive)
	if err != nil {
		return results
	}
	tracked, err := all.Strings(ColumnTracked)
	if err != nil {
		return results
	}
	var living, dead, nTracked, nUntracked float64
	for i := range alive {
		switch alive[i] {
		case StateAlive:
			living++
		case StateDead:
			dead++
		}
		switch tracked[i] {
		case StateTracked:
			nTracked++
		case StateUntracked:
			nUntracked++
		}
	}
	results["total_population_living"] = living
	results["total_population_dead"] = dead
	results["total_population_tracked"] = nTracked
	results["total_population_untracked"] = nUntracked
	results["total_population"] = living + dead
	return results
}
