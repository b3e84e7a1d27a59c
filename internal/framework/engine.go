package framework

import (
	"fmt"
	"log/slog"
	"time"
)

// Event carries the timing context for one observer callback.
//
// For prepare hooks, Time is the start of the step; for collect hooks it is
// the end. Index is the full set of tracked rows.
type Event struct {
	Time     time.Time
	StepSize time.Duration
	Index    []int
}

// Years converts the event's step size to fractional years, using the
// 365.25-day year the person-time measures are defined in.
func (e *Event) Years() float64 {
	return e.StepSize.Hours() / (24 * 365.25)
}

// Pipeline produces a per-simulant derived value (disability weight,
// hemoglobin exposure). The skipPostProcessor flag selects the raw value
// over the post-processed one; the caller must request the mode its
// statistic is defined on.
type Pipeline interface {
	Values(rows []int, skipPostProcessor bool) []float64
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(rows []int, skipPostProcessor bool) []float64

// Values implements Pipeline.
func (f PipelineFunc) Values(rows []int, skipPostProcessor bool) []float64 {
	return f(rows, skipPostProcessor)
}

// Observer is one result-observation component. The engine invokes
// OnTimeStepPrepare and OnCollectMetrics exactly once per step each, and
// Metrics once at run end. Metrics receives the shared results mapping and
// returns it with the observer's keys merged in; observers must key their
// contributions uniquely since merge order is unspecified.
type Observer interface {
	Name() string
	OnTimeStepPrepare(ev *Event) error
	OnCollectMetrics(ev *Event) error
	Metrics(results map[string]float64) map[string]float64
}

// Engine is the reference host: it owns the population table and the clock,
// and drives registered observers step by step. Execution is single
// threaded and step synchronous; within a step, every observer's prepare
// hook completes before any observer's collect hook begins. The
// disease-transition observer's previous-state contract depends on that
// barrier.
type Engine struct {
	pop      *Table
	clock    time.Time
	end      time.Time
	stepSize time.Duration
	log      *slog.Logger

	observers []Observer

	// Mutate, when non-nil, runs between the prepare and collect phases of
	// each step. It stands in for the host's state-transition models.
	Mutate func(step int, pop *Table)
}

// NewEngine creates an engine over pop running from start to end in steps
// of stepSize.
func NewEngine(pop *Table, start, end time.Time, stepSize time.Duration, log *slog.Logger) (*Engine, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %v", stepSize)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("simulation start %v is not before end %v", start, end)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{pop: pop, clock: start, end: end, stepSize: stepSize, log: log}, nil
}

// Population returns the engine's population table.
func (e *Engine) Population() *Table { return e.pop }

// Clock returns the current simulated time.
func (e *Engine) Clock() time.Time { return e.clock }

// Register adds an observer to the run.
func (e *Engine) Register(obs ...Observer) {
	e.observers = append(e.observers, obs...)
}

// Step advances simulated time by one step, firing every prepare hook and
// then every collect hook. The step is attributed the half-open interval
// [clock, clock+stepSize).
func (e *Engine) Step(step int) error {
	index := e.pop.Index()

	prepare := &Event{Time: e.clock, StepSize: e.stepSize, Index: index}
	for _, o := range e.observers {
		if err := o.OnTimeStepPrepare(prepare); err != nil {
			return fmt.Errorf("observer %s: time_step__prepare: %w", o.Name(), err)
		}
	}

	if e.Mutate != nil {
		e.Mutate(step, e.pop)
	}

	e.clock = e.clock.Add(e.stepSize)
	collect := &Event{Time: e.clock, StepSize: e.stepSize, Index: index}
	for _, o := range e.observers {
		if err := o.OnCollectMetrics(collect); err != nil {
			return fmt.Errorf("observer %s: collect_metrics: %w", o.Name(), err)
		}
	}

	e.log.Debug("step complete", "step", step, "time", e.clock)
	return nil
}

// Run steps the simulation until the clock reaches the end time, then
// collects every observer's metrics into one flat results row.
func (e *Engine) Run() (map[string]float64, error) {
	step := 0
	for e.clock.Before(e.end) {
		if err := e.Step(step); err != nil {
			return nil, err
		}
		step++
	}
	e.log.Info("run complete", "steps", step, "observers", len(e.observers))

	results := make(map[string]float64)
	for _, o := range e.observers {
		results = o.Metrics(results)
	}
	return results, nil
}
