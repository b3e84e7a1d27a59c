package reshape

import (
	"math"
	"strings"
)

// nonCount reports whether a column holds a statistic rather than an
// additive count. Statistics are averaged across random seeds; everything
// else (person time, event and death counts, population totals) sums.
func nonCount(column string) bool {
	return strings.HasPrefix(column, "birth_weight_") ||
		strings.HasPrefix(column, "hemoglobin_")
}

// AggregateOverSeeds collapses the random-seed dimension: one output row
// per (input draw, scenario), count columns summed and statistic columns
// averaged across the group's seeds. A statistic cell is NaN when the seed
// never observed the group, so the average runs over the seeds that did;
// the aggregate is NaN only when every seed is NaN. Output rows carry
// RandomSeed zero.
func AggregateOverSeeds(t *WideTable) *WideTable {
	type groupKey struct {
		draw     int
		scenario string
	}
	order := make([]groupKey, 0)
	sums := make(map[groupKey]map[string]float64)
	observed := make(map[groupKey]map[string]int)

	for _, row := range t.Rows {
		k := groupKey{draw: row.InputDraw, scenario: row.Scenario}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
			sums[k] = make(map[string]float64, len(t.Columns))
			observed[k] = make(map[string]int, len(t.Columns))
		}
		for _, c := range t.Columns {
			v := row.Values[c]
			if nonCount(c) && math.IsNaN(v) {
				continue
			}
			sums[k][c] += v
			observed[k][c]++
		}
	}

	rows := make([]Replicate, 0, len(order))
	for _, k := range order {
		values := sums[k]
		for _, c := range t.Columns {
			if !nonCount(c) {
				continue
			}
			if n := observed[k][c]; n > 0 {
				values[c] /= float64(n)
			} else {
				values[c] = math.NaN()
			}
		}
		rows = append(rows, Replicate{
			InputDraw: k.draw,
			Scenario:  k.scenario,
			Values:    values,
		})
	}
	return &WideTable{Columns: t.Columns, Rows: rows}
}
