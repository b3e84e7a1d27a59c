package observers

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/stratify"
)

// BirthWeightObserver reports mean and standard deviation of birth weight
// by (entrance year, sex, maternal iron fortification group). The grouping
// inputs are static per simulant, so each collect recomputes the statistics
// over everyone who has entered so far and overwrites the previous values;
// nothing is added incrementally. Groups with no members report NaN rather
// than dropping their keys, keeping the output schema uniform.
type BirthWeightObserver struct {
	view  *framework.PopulationView
	spans []Span
	stats map[string]float64
}

// NewBirthWeightObserver builds the observer over yearly entrance spans
// clipped to the simulation bounds.
func NewBirthWeightObserver(pop *framework.Table, simStart, simEnd time.Time) (*BirthWeightObserver, error) {
	if !simStart.Before(simEnd) {
		return nil, fmt.Errorf("simulation start %v is not before end %v", simStart, simEnd)
	}
	view, err := pop.View(ColumnEntranceTime, ColumnSex, ColumnIronGroup, ColumnBirthWeight)
	if err != nil {
		return nil, err
	}
	o := &BirthWeightObserver{
		view:  view,
		spans: TimeSpans(simStart, simEnd, true),
		stats: make(map[string]float64),
	}
	o.recompute(nil)
	return o, nil
}

// Name implements framework.Observer.
func (o *BirthWeightObserver) Name() string { return "birth_weight_observer" }

// OnTimeStepPrepare is a no-op.
func (o *BirthWeightObserver) OnTimeStepPrepare(ev *framework.Event) error { return nil }

// OnCollectMetrics recomputes the per-group statistics.
func (o *BirthWeightObserver) OnCollectMetrics(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	return o.recomputeFrom(pop)
}

// recompute fills the stats mapping; a nil snapshot seeds every key with
// the empty-group placeholder.
func (o *BirthWeightObserver) recompute(weights map[string][]float64) {
	cfg := keys.Config{ByYear: true, BySex: true}
	for _, span := range o.spans {
		for _, sex := range stratify.Sexes {
			for _, group := range IronGroups {
				base := keys.WithIronGroup(
					keys.Encode(cfg, "birth_weight_mean", keys.Label{Year: span.Label, Sex: sex}), group)
				sdKey := keys.WithIronGroup(
					keys.Encode(cfg, "birth_weight_sd", keys.Label{Year: span.Label, Sex: sex}), group)

				samples := weights[span.Label+"|"+sex+"|"+group]
				if len(samples) == 0 {
					o.stats[base] = math.NaN()
					o.stats[sdKey] = math.NaN()
					continue
				}
				o.stats[base] = stat.Mean(samples, nil)
				o.stats[sdKey] = stat.StdDev(samples, nil)
			}
		}
	}
}

func (o *BirthWeightObserver) recomputeFrom(pop *framework.Snapshot) error {
	entrances, err := pop.Times(ColumnEntranceTime)
	if err != nil {
		return err
	}
	sexes, err := pop.Strings(ColumnSex)
	if err != nil {
		return err
	}
	groups, err := pop.Strings(ColumnIronGroup)
	if err != nil {
		return err
	}
	bw, err := pop.Floats(ColumnBirthWeight)
	if err != nil {
		return err
	}

	weights := make(map[string][]float64)
	for i := range entrances {
		for _, span := range o.spans {
			if span.Contains(entrances[i]) {
				weights[span.Label+"|"+sexes[i]+"|"+groups[i]] = append(
					weights[span.Label+"|"+sexes[i]+"|"+groups[i]], bw[i])
				break
			}
		}
	}
	o.recompute(weights)
	return nil
}

// Metrics merges the latest per-group statistics.
func (o *BirthWeightObserver) Metrics(results map[string]float64) map[string]float64 {
	for k, v := range o.stats {
		results[k] = v
	}
	return results
}
