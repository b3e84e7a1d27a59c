package observers

import (
	"fmt"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// AnemiaSeverities is the severity category set, mildest first.
var AnemiaSeverities = []string{"none", "mild", "moderate", "severe"}

// AnemiaThresholds are hemoglobin cutoffs in g/L, exclusive upper bounds
// per severity: below Severe is severe, below Moderate is moderate, below
// Mild is mild, anything else is no anemia.
type AnemiaThresholds struct {
	Severe   float64
	Moderate float64
	Mild     float64
}

// DefaultAnemiaThresholds are the under-five cutoffs.
var DefaultAnemiaThresholds = AnemiaThresholds{Severe: 70, Moderate: 100, Mild: 110}

// Severity classifies a hemoglobin level.
func (t AnemiaThresholds) Severity(hemoglobin float64) string {
	switch {
	case hemoglobin < t.Severe:
		return "severe"
	case hemoglobin < t.Moderate:
		return "moderate"
	case hemoglobin < t.Mild:
		return "mild"
	default:
		return "none"
	}
}

// Validate checks the cutoffs are ordered.
func (t AnemiaThresholds) Validate() error {
	if !(t.Severe < t.Moderate && t.Moderate < t.Mild) {
		return fmt.Errorf("anemia thresholds must satisfy severe < moderate < mild, got %+v", t)
	}
	return nil
}

// AnemiaObserver accrues person time per anemia severity each step. The
// severity category derives from the post-processed hemoglobin pipeline
// value against the threshold cutoffs; the accrual shape matches the
// disease observer's person-time half.
type AnemiaObserver struct {
	pipeline   framework.Pipeline
	thresholds AnemiaThresholds
	cfg        keys.Config
	bins       *stratify.AgeBins

	view       *framework.PopulationView
	personTime metrics.Counter
}

// NewAnemiaObserver builds the observer.
func NewAnemiaObserver(pop *framework.Table, pipeline framework.Pipeline, thresholds AnemiaThresholds,
	cfg keys.Config, bins *stratify.AgeBins) (*AnemiaObserver, error) {

	if pipeline == nil {
		return nil, fmt.Errorf("anemia observer requires a hemoglobin pipeline")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.ByAge && bins == nil {
		return nil, fmt.Errorf("anemia observer stratifies by age but has no age bins")
	}

	columns := []string{ColumnAlive}
	if cfg.BySex {
		columns = append(columns, ColumnSex)
	}
	if cfg.ByAge {
		columns = append(columns, ColumnAge)
	}
	view, err := pop.View(dedup(columns)...)
	if err != nil {
		return nil, err
	}

	return &AnemiaObserver{
		pipeline:   pipeline,
		thresholds: thresholds,
		cfg:        cfg,
		bins:       bins,
		view:       view,
		personTime: metrics.Counter{},
	}, nil
}

// Name implements framework.Observer.
func (o *AnemiaObserver) Name() string { return "anemia_observer" }

// OnTimeStepPrepare accrues severity person time for the elapsed step.
func (o *AnemiaObserver) OnTimeStepPrepare(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	living := pop.Filter(func(i int) bool { return alive[i] == StateAlive })

	// Severity uses the post-processed hemoglobin value.
	levels := o.pipeline.Values(living.Rows(), false)
	if len(levels) != living.Len() {
		return fmt.Errorf("hemoglobin pipeline returned %d values for %d rows", len(levels), living.Len())
	}
	severities := make([]string, len(levels))
	for i, hb := range levels {
		severities[i] = o.thresholds.Severity(hb)
	}

	stepYears := ev.Years()
	year := ev.Time.Year()
	for _, severity := range AnemiaSeverities {
		severity := severity
		group := living.Filter(func(i int) bool { return severities[i] == severity })
		partial, err := groupCounts(group, o.cfg, o.bins,
			"anemia_"+severity+"_person_time", year, personTime(stepYears))
		if err != nil {
			return err
		}
		o.personTime.Update(partial)
	}
	return nil
}

// OnCollectMetrics is a no-op; anemia person time accrues at prepare.
func (o *AnemiaObserver) OnCollectMetrics(ev *framework.Event) error { return nil }

// Metrics merges accumulated severity person time.
func (o *AnemiaObserver) Metrics(results map[string]float64) map[string]float64 {
	return o.personTime.Merge(results)
}
