package observers

import (
	"fmt"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// DefaultHemoglobinBands are the reporting age bands, labeled by band
// start. Hemoglobin is not measured below six months.
var DefaultHemoglobinBands = []stratify.AgeBin{
	{Name: "0.5", Start: 0.5, End: 1},
	{Name: "1", Start: 1, End: 2},
	{Name: "2", Start: 2, End: 5},
}

// HemoglobinObserver collects raw hemoglobin readings at every collect
// step, partitioned by age band, sex, iron fortification status, and
// treatment responsiveness. Unlike every other observer its accumulator
// stores the samples themselves, not running sums: mean and variance are
// reduced only at the final metrics read, since they cannot be computed
// incrementally from partial sums alone.
type HemoglobinObserver struct {
	pipeline framework.Pipeline
	bands    []stratify.AgeBin
	view     *framework.PopulationView
	samples  metrics.SampleSet
}

// NewHemoglobinObserver builds the observer. pipeline supplies the raw
// hemoglobin exposure per simulant. bands may be nil to use the defaults.
func NewHemoglobinObserver(pop *framework.Table, pipeline framework.Pipeline, bands []stratify.AgeBin) (*HemoglobinObserver, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("hemoglobin observer requires a hemoglobin pipeline")
	}
	if bands == nil {
		bands = DefaultHemoglobinBands
	}
	view, err := pop.View(ColumnAlive, ColumnAge, ColumnSex, ColumnIronGroup, ColumnIronResponse)
	if err != nil {
		return nil, err
	}
	o := &HemoglobinObserver{
		pipeline: pipeline,
		bands:    bands,
		view:     view,
		samples:  metrics.SampleSet{},
	}
	// Register every category so empty ones keep their output keys.
	for _, band := range o.bands {
		for _, sex := range stratify.Sexes {
			for _, status := range IronGroups {
				for _, resp := range IronResponses {
					o.samples.Add(o.sampleKey(band.Name, sex, status, resp))
				}
			}
		}
	}
	return o, nil
}

func (o *HemoglobinObserver) sampleKey(band, sex, status, resp string) string {
	return keys.EncodeHemoglobin("level", sex, band, status, resp)
}

// Name implements framework.Observer.
func (o *HemoglobinObserver) Name() string { return "hemoglobin_observer" }

// OnTimeStepPrepare is a no-op.
func (o *HemoglobinObserver) OnTimeStepPrepare(ev *framework.Event) error { return nil }

// OnCollectMetrics samples hemoglobin for every living simulant currently
// inside a reporting band.
func (o *HemoglobinObserver) OnCollectMetrics(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	ages, err := pop.Floats(ColumnAge)
	if err != nil {
		return err
	}
	sexes, err := pop.Strings(ColumnSex)
	if err != nil {
		return err
	}
	statuses, err := pop.Strings(ColumnIronGroup)
	if err != nil {
		return err
	}
	responses, err := pop.Strings(ColumnIronResponse)
	if err != nil {
		return err
	}

	// Raw exposure values, not post-processed.
	levels := o.pipeline.Values(pop.Rows(), true)
	if len(levels) != pop.Len() {
		return fmt.Errorf("hemoglobin pipeline returned %d values for %d rows", len(levels), pop.Len())
	}

	for i := range ages {
		if alive[i] != StateAlive {
			continue
		}
		band, ok := o.findBand(ages[i])
		if !ok {
			continue
		}
		key := o.sampleKey(band, sexes[i], statuses[i], responses[i])
		if _, declared := o.samples[key]; !declared {
			return fmt.Errorf("hemoglobin category (%s, %s, %s) at snapshot row %d is not declared",
				sexes[i], statuses[i], responses[i], i)
		}
		o.samples.Add(key, levels[i])
	}
	return nil
}

func (o *HemoglobinObserver) findBand(age float64) (string, bool) {
	for _, b := range o.bands {
		if b.Contains(age) {
			return b.Name, true
		}
	}
	return "", false
}

// Metrics reduces each category's samples to mean and population variance.
func (o *HemoglobinObserver) Metrics(results map[string]float64) map[string]float64 {
	for _, band := range o.bands {
		for _, sex := range stratify.Sexes {
			for _, status := range IronGroups {
				for _, resp := range IronResponses {
					mean, variance := o.samples.MeanVariance(o.sampleKey(band.Name, sex, status, resp))
					results[keys.EncodeHemoglobin("mean", sex, band.Name, status, resp)] = mean
					results[keys.EncodeHemoglobin("variance", sex, band.Name, status, resp)] = variance
				}
			}
		}
	}
	return results
}
