package observers

import (
	"fmt"
	"time"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/metrics"
	"github.com/healthsim/stratify/internal/stratify"
)

// Span is one half-open [Start, End) reporting window.
type Span struct {
	Start time.Time
	End   time.Time
	Label string
}

// TimeSpans builds the reporting windows between simStart and simEnd.
// With yearly spans, one window per calendar year clipped to
// [simStart, simEnd); otherwise a single all-time window. A year fully
// outside the simulation bounds yields no window; a year partially covered
// is clipped, so entrants are never attributed outside the run.
func TimeSpans(simStart, simEnd time.Time, yearly bool) []Span {
	if !yearly {
		return []Span{{Start: simStart, End: simEnd, Label: "all_years"}}
	}
	var spans []Span
	for year := simStart.Year(); year <= simEnd.Year(); year++ {
		start := time.Date(year, 1, 1, 0, 0, 0, 0, simStart.Location())
		end := start.AddDate(1, 0, 0)
		if start.Before(simStart) {
			start = simStart
		}
		if end.After(simEnd) {
			end = simEnd
		}
		if !start.Before(end) {
			continue
		}
		spans = append(spans, Span{Start: start, End: end, Label: fmt.Sprintf("%d", year)})
	}
	return spans
}

// Contains reports whether t falls in the span.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// BirthObserver counts live births, and separately births flagged with the
// neural tube defect condition, per reporting span. It only uses the
// collect hook: each step it scans entrance times recorded since its last
// collect, attributes each entrant to the span containing its entrance,
// and advances its reference time, so no entrant is counted twice.
type BirthObserver struct {
	ntdState string
	cfg      keys.Config
	fort     *stratify.FortificationStratifier

	view     *framework.PopulationView
	spans    []Span
	ref      time.Time
	simStart time.Time
	simEnd   time.Time

	births  metrics.Counter
	withNTD metrics.Counter
}

// NewBirthObserver builds the observer. ntdState names both the disease
// column and the with-condition state value flagging a neural tube defect;
// it may be empty to disable the defect family. cfg.ByYear selects yearly
// spans over a single all-time span; cfg.ByAge is rejected since birth
// records carry no age dimension.
func NewBirthObserver(pop *framework.Table, ntdState string, cfg keys.Config,
	fort *stratify.FortificationStratifier, simStart, simEnd time.Time) (*BirthObserver, error) {

	if cfg.ByAge {
		return nil, fmt.Errorf("birth observer does not support age stratification")
	}
	if !simStart.Before(simEnd) {
		return nil, fmt.Errorf("simulation start %v is not before end %v", simStart, simEnd)
	}

	columns := []string{ColumnAlive, ColumnEntranceTime}
	if ntdState != "" {
		columns = append(columns, ntdState)
	}
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

	o := &BirthObserver{
		ntdState: ntdState,
		cfg:      cfg,
		fort:     fort,
		view:     view,
		spans:    TimeSpans(simStart, simEnd, cfg.ByYear),
		ref:      simStart,
		simStart: simStart,
		simEnd:   simEnd,
		births:   metrics.Counter{},
		withNTD:  metrics.Counter{},
	}
	o.seedKeys()
	return o, nil
}

// seedKeys zeroes every key in the declared label space so that spans with
// no entrants still appear in the output.
func (o *BirthObserver) seedKeys() {
	sexes := []string{""}
	if o.cfg.BySex {
		sexes = stratify.Sexes
	}
	seed := func(c metrics.Counter, measure string) {
		for _, span := range o.spans {
			for _, sex := range sexes {
				key := keys.Encode(o.cfg, measure, keys.Label{Year: span.Label, Sex: sex})
				if o.fort == nil {
					c.Seed(key)
					continue
				}
				for _, fg := range stratify.FolicAcidGroups {
					for _, vg := range stratify.VitaminAGroups {
						c.Seed(keys.WithFortification(key, fg, vg))
					}
				}
			}
		}
	}
	seed(o.births, "live_births")
	if o.ntdState != "" {
		seed(o.withNTD, "born_with_ntd")
	}
}

// Name implements framework.Observer.
func (o *BirthObserver) Name() string { return "live_birth_observer" }

// OnTimeStepPrepare is a no-op; births are counted at collect time only.
func (o *BirthObserver) OnTimeStepPrepare(ev *framework.Event) error { return nil }

// OnCollectMetrics counts entrants since the last collect per span.
func (o *BirthObserver) OnCollectMetrics(ev *framework.Event) error {
	pop := o.view.Get(ev.Index)
	alive, err := pop.Strings(ColumnAlive)
	if err != nil {
		return err
	}
	entrances, err := pop.Times(ColumnEntranceTime)
	if err != nil {
		return err
	}

	// Entrants recorded since the previous collect, clipped to the run.
	newborn := pop.Filter(func(i int) bool {
		return alive[i] == StateAlive &&
			!entrances[i].Before(o.ref) && entrances[i].Before(ev.Time) &&
			!entrances[i].Before(o.simStart) && entrances[i].Before(o.simEnd)
	})
	if err := o.accumulate(o.births, "live_births", newborn); err != nil {
		return err
	}

	if o.ntdState != "" {
		disease, err := pop.Strings(o.ntdState)
		if err != nil {
			return err
		}
		// Filter on the parent snapshot so positions line up with disease.
		flaggedNewborn := pop.Filter(func(i int) bool {
			return alive[i] == StateAlive && disease[i] == o.ntdState &&
				!entrances[i].Before(o.ref) && entrances[i].Before(ev.Time) &&
				!entrances[i].Before(o.simStart) && entrances[i].Before(o.simEnd)
		})
		if err := o.accumulate(o.withNTD, "born_with_ntd", flaggedNewborn); err != nil {
			return err
		}
	}

	o.ref = ev.Time
	return nil
}

// accumulate counts sub's entrants into c, one partial per span.
func (o *BirthObserver) accumulate(c metrics.Counter, measure string, sub *framework.Snapshot) error {
	entrances, err := sub.Times(ColumnEntranceTime)
	if err != nil {
		return err
	}
	for _, span := range o.spans {
		span := span
		inSpan := sub.Filter(func(i int) bool { return span.Contains(entrances[i]) })
		partial, err := o.spanCounts(inSpan, measure, span.Label)
		if err != nil {
			return err
		}
		c.Update(partial)
	}
	return nil
}

// spanCounts counts sub by sex (and fortification cell) under the span
// label.
func (o *BirthObserver) spanCounts(sub *framework.Snapshot, measure, spanLabel string) (map[string]float64, error) {
	out := make(map[string]float64)

	countInto := func(group *framework.Snapshot, sex string, suffix func(string) string) {
		key := keys.Encode(o.cfg, measure, keys.Label{Year: spanLabel, Sex: sex})
		if suffix != nil {
			key = suffix(key)
		}
		out[key] += float64(group.Len())
	}

	bySex := []stratify.Labeled{{Label: "", Rows: sub}}
	if o.cfg.BySex {
		var err error
		bySex, err = stratify.BySex(sub, ColumnSex)
		if err != nil {
			return nil, err
		}
	}
	for _, sexGroup := range bySex {
		if o.fort == nil {
			countInto(sexGroup.Rows, sexGroup.Label, nil)
			continue
		}
		cells, err := o.fort.Group(sexGroup.Rows)
		if err != nil {
			return nil, err
		}
		for _, cell := range cells {
			cell := cell
			countInto(cell.Rows, sexGroup.Label, func(k string) string {
				return keys.WithFortification(k, cell.FolicAcid, cell.VitaminA)
			})
		}
	}
	return out, nil
}

// Metrics merges the accumulated birth counts.
func (o *BirthObserver) Metrics(results map[string]float64) map[string]float64 {
	results = o.births.Merge(results)
	return o.withNTD.Merge(results)
}
