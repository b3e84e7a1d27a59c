// Package metrics provides the accumulators observers write into over a
// simulation run: additive counters for event counts and person-time, and a
// raw-sample set for measures whose final statistic cannot be accumulated
// as a running sum.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Counter is a running total keyed by encoded result key. It is created
// empty at observer setup and lives exactly as long as the observer: values
// are only ever added to, never overwritten, removed, or reset, so the
// final mapping is the key-wise sum of every partial contributed during the
// run, independent of step order.
type Counter map[string]float64

// Update adds each partial value to the existing total at its key, starting
// from zero for unseen keys.
func (c Counter) Update(partial map[string]float64) {
	for k, v := range partial {
		c[k] += v
	}
}

// Seed ensures a key exists, leaving an existing total untouched. Observers
// seed their full declared key space at setup so every expected key appears
// in the output even when no individual ever contributes to it.
func (c Counter) Seed(key string) {
	if _, ok := c[key]; !ok {
		c[key] = 0
	}
}

// Merge copies the counter's keys into the shared results mapping and
// returns it, matching the host metrics-pipeline contract. Keys must be
// unique per observer; merge order across observers does not matter.
func (c Counter) Merge(results map[string]float64) map[string]float64 {
	for k, v := range c {
		results[k] = v
	}
	return results
}

// SampleSet accumulates raw per-step samples keyed by encoded key. The
// hemoglobin observer uses it because mean and variance cannot be reduced
// from partial sums alone; samples are kept whole and reduced only at the
// final metrics read.
type SampleSet map[string][]float64

// Add appends samples at key. Adding no samples still registers the key, so
// empty categories keep their place in the output schema.
func (s SampleSet) Add(key string, samples ...float64) {
	s[key] = append(s[key], samples...)
}

// MeanVariance reduces the samples at key to their mean and population
// variance. Empty sample lists report NaN for both, the degenerate
// placeholder that keeps the output schema uniform across replicates.
func (s SampleSet) MeanVariance(key string) (mean, variance float64) {
	samples := s[key]
	if len(samples) == 0 {
		return math.NaN(), math.NaN()
	}
	mean = stat.Mean(samples, nil)
	variance = stat.MomentAbout(2, samples, mean, nil)
	return mean, variance
}
