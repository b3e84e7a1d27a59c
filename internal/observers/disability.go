package observers

import (
	"fmt"
	"sort"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// DisabilityObserver accrues years lived with disability per step. For each
// tracked living simulant it looks up a per-cause disability weight from
// the host pipeline, accrues weight × step years into its per-cause
// counters, and writes the combined accrual back into a running total
// column on the population table. It is the one observer that mutates the
// population snapshot rather than only reading it; the write is visible to
// the host immediately.
type DisabilityObserver struct {
	cfg  keys.Config
	bins *stratify.AgeBins
	fort *stratify.FortificationStratifier

	// causes maps cause of disability to its disability weight pipeline.
	causes     map[string]framework.Pipeline
	causeOrder []string

	view *framework.PopulationView
	ylds metrics.Counter
}

// NewDisabilityObserver builds the observer. The running total column is
// created on the table if missing, initialized to zero.
func NewDisabilityObserver(pop *framework.Table, causes map[string]framework.Pipeline,
	cfg keys.Config, bins *stratify.AgeBins, fort *stratify.FortificationStratifier) (*DisabilityObserver, error) {

	if len(causes) == 0 {
		return nil, fmt.Errorf("disability observer has no causes of disability")
	}
	order := make([]string, 0, len(causes))
	for cause := range causes {
		if err := keys.ValidateCategory(cause); err != nil {
			return nil, fmt.Errorf("cause of disability: %w", err)
		}
		order = append(order, cause)
	}
	sort.Strings(order)
	if cfg.ByAge && bins == nil {
		return nil, fmt.Errorf("disability observer stratifies by age but has no age bins")
	}

	if !pop.HasColumn(ColumnTotalYLDs) {
		if err := pop.AddColumn(framework.FloatColumn(ColumnTotalYLDs, make([]float64, pop.Len()))); err != nil {
			return nil, err
		}
	}

	columns := []string{ColumnAlive, ColumnTracked, ColumnTotalYLDs}
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

	return &DisabilityObserver{
		cfg:        cfg,
		bins:       bins,
		fort:       fort,
		causes:     causes,
		causeOrder: order,
		view:       view,
		ylds:       metrics.Counter{},
	}, nil
}

// Name implements framework.Observer.
func (o *DisabilityObserver) Name() string { return "disability_observer" }

// OnTimeStepPrepare accrues this step's years lived with disability per
// cause and folds the combined accrual into the table's running total.
func (o *DisabilityObserver) OnTimeStepPrepare(ev *framework.Event) error {
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

	stepYears := ev.Years()
	year := ev.Time.Year()
	rows := living.Rows()

	combined := make(map[int]float64, len(rows))
	for _, cause := range o.causeOrder {
		// Disability weights use the post-processed pipeline value.
		weights := o.causes[cause].Values(rows, false)
		if len(weights) != len(rows) {
			return fmt.Errorf("disability weight pipeline for %s returned %d values for %d rows",
				cause, len(weights), len(rows))
		}
		perRow := make(map[int]float64, len(rows))
		for i, row := range rows {
			accrued := weights[i] * stepYears
			perRow[row] = accrued
			combined[row] += accrued
		}

		partial, err := fortifiedGroupCounts(living, o.cfg, o.bins, o.fort,
			"ylds_due_to_"+cause, year, sumOver(perRow))
		if err != nil {
			return err
		}
		o.ylds.Update(partial)
	}

	// Fold the combined accrual into the running total column.
	current, err := living.Floats(ColumnTotalYLDs)
	if err != nil {
		return err
	}
	for i, row := range rows {
		current[i] += combined[row]
	}
	return o.view.UpdateFloats(ColumnTotalYLDs, rows, current)
}

// OnCollectMetrics is a no-op; disability accrues during the prepare phase
// against pre-mutation state.
func (o *DisabilityObserver) OnCollectMetrics(ev *framework.Event) error { return nil }

// Metrics merges per-cause totals and the whole-population total.
func (o *DisabilityObserver) Metrics(results map[string]float64) map[string]float64 {
	results = o.ylds.Merge(results)
	total := 0.0
	for _, v := range o.ylds {
		total += v
	}
	results["years_lived_with_disability"] = total
	return results
}
