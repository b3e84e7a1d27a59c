// Package stratify partitions population snapshots into labeled, disjoint
// subgroups along categorical dimensions: age bins, sex, disease state, and
// fortification-coverage groups. Every stratifier yields a complete
// partition of its input; empty subgroups are yielded with their labels so
// the full key space appears in every output row.
package stratify

import (
	"fmt"
	"sort"

	"github.com/healthsim/stratify/internal/framework"
)

// AgeBin is a half-open [Start, End) age interval in years.
type AgeBin struct {
	Name  string
	Start float64
	End   float64
}

// Contains reports whether age falls in the bin.
func (b AgeBin) Contains(age float64) bool {
	return age >= b.Start && age < b.End
}

// AgeBins is an exhaustive, gap-free, overlap-free binning of the supported
// age range. Bins come from an externally supplied table; validation
// happens here, at construction, so a bad table fails setup rather than a
// simulation step.
type AgeBins struct {
	bins []AgeBin
}

// NewAgeBins validates and wraps an age-bin table. Bins may arrive in any
// order; they are sorted by start age.
func NewAgeBins(bins []AgeBin) (*AgeBins, error) {
	if len(bins) == 0 {
		return nil, fmt.Errorf("age bin table is empty")
	}
	sorted := make([]AgeBin, len(bins))
	copy(sorted, bins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, b := range sorted {
		if b.End <= b.Start {
			return nil, fmt.Errorf("age bin %q has non-positive width [%v, %v)", b.Name, b.Start, b.End)
		}
		if i > 0 && sorted[i-1].End != b.Start {
			return nil, fmt.Errorf("age bins %q and %q do not tile: [%v, %v) then [%v, %v)",
				sorted[i-1].Name, b.Name, sorted[i-1].Start, sorted[i-1].End, b.Start, b.End)
		}
	}
	return &AgeBins{bins: sorted}, nil
}

// Bins returns the bins in ascending age order.
func (a *AgeBins) Bins() []AgeBin { return a.bins }

// Find returns the bin containing age. The second return is false when age
// falls outside the supported range.
func (a *AgeBins) Find(age float64) (AgeBin, bool) {
	i := sort.Search(len(a.bins), func(i int) bool { return a.bins[i].End > age })
	if i == len(a.bins) || !a.bins[i].Contains(age) {
		return AgeBin{}, false
	}
	return a.bins[i], true
}

// Labeled pairs a category label with the matching row subset.
type Labeled struct {
	Label string
	Rows  *framework.Snapshot
}

// ByAge partitions pop by age bin using the ageColumn. Every bin is yielded
// even when empty. Ages outside the table's range are an error: the bin
// table is required to be exhaustive over the simulated population.
func ByAge(pop *framework.Snapshot, ageColumn string, bins *AgeBins) ([]Labeled, error) {
	ages, err := pop.Floats(ageColumn)
	if err != nil {
		return nil, err
	}
	for i, age := range ages {
		if _, ok := bins.Find(age); !ok {
			return nil, fmt.Errorf("age %v at snapshot row %d is outside the age bin table", age, i)
		}
	}
	out := make([]Labeled, 0, len(bins.bins))
	for _, bin := range bins.bins {
		bin := bin
		sub := pop.Filter(func(i int) bool { return bin.Contains(ages[i]) })
		out = append(out, Labeled{Label: bin.Name, Rows: sub})
	}
	return out, nil
}

// Sexes is the fixed sex category set, in output order.
var Sexes = []string{"male", "female"}

// BySex partitions pop on the sex column. Both categories are yielded even
// when empty.
func BySex(pop *framework.Snapshot, sexColumn string) ([]Labeled, error) {
	sexes, err := pop.Strings(sexColumn)
	if err != nil {
		return nil, err
	}
	out := make([]Labeled, 0, len(Sexes))
	for _, sex := range Sexes {
		sex := sex
		sub := pop.Filter(func(i int) bool { return sexes[i] == sex })
		out = append(out, Labeled{Label: sex, Rows: sub})
	}
	return out, nil
}

// ByValue partitions pop on a string column over a declared category set.
// Rows with undeclared values are an error, preserving the partition
// invariant: label assignment must be total.
func ByValue(pop *framework.Snapshot, column string, categories []string) ([]Labeled, error) {
	values, err := pop.Strings(column)
	if err != nil {
		return nil, err
	}
	declared := make(map[string]bool, len(categories))
	for _, c := range categories {
		declared[c] = true
	}
	for i, v := range values {
		if !declared[v] {
			return nil, fmt.Errorf("column %q value %q at snapshot row %d is not a declared category", column, v, i)
		}
	}
	out := make([]Labeled, 0, len(categories))
	for _, c := range categories {
		c := c
		sub := pop.Filter(func(i int) bool { return values[i] == c })
		out = append(out, Labeled{Label: c, Rows: sub})
	}
	return out, nil
}
