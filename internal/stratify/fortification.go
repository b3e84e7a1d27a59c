package stratify

import (
	"fmt"

	"github.com/healthsim/stratify/internal/framework"
)

// Fortification coverage categories, in output order.
const (
	Uncovered          = "uncovered"
	Covered            = "covered"
	EffectivelyCovered = "effectively_covered"
)

// FolicAcidGroups is the folic acid dimension's category set. Folic acid
// coverage is assigned at birth and stored directly on the population.
var FolicAcidGroups = []string{Covered, Uncovered}

// VitaminAGroups is the vitamin A dimension's category set.
var VitaminAGroups = []string{Uncovered, Covered, EffectivelyCovered}

// effectiveCoverageAge is the age in years past which sustained high
// exposure counts as effective coverage. Younger simulants with high
// exposure are covered but have not accrued enough exposure time to be
// effectively covered.
const effectiveCoverageAge = 0.5

// FortificationStratifier yields the 2-D cross product of folic acid and
// vitamin A coverage groups over a population snapshot. The folic acid
// group is read from a population column; the vitamin A group is derived
// from the raw exposure category, the coverage start timestamp, and age.
type FortificationStratifier struct {
	// FolicAcidColumn holds each simulant's folic acid coverage group.
	FolicAcidColumn string
	// ExposureColumn holds the raw two-category vitamin A exposure.
	ExposureColumn string
	// HighCategory is the exposure value indicating coverage.
	HighCategory string
	// StartColumn holds the vitamin A coverage start timestamp; the zero
	// time means coverage never started.
	StartColumn string
	// AgeColumn holds age in years.
	AgeColumn string
}

// FortificationGroup is one cell of the coverage cross product.
type FortificationGroup struct {
	FolicAcid string
	VitaminA  string
	Rows      *framework.Snapshot
}

// VitaminACoverage classifies one simulant's vitamin A coverage.
// Precedence: high exposure past the effective-coverage age is effectively
// covered; any other high exposure, or a recorded coverage start, is
// covered; everything else is uncovered.
func (f *FortificationStratifier) VitaminACoverage(exposure string, age float64, started bool) string {
	switch {
	case exposure == f.HighCategory && age > effectiveCoverageAge:
		return EffectivelyCovered
	case exposure == f.HighCategory:
		return Covered
	case started:
		return Covered
	default:
		return Uncovered
	}
}

// Group partitions pop into the full folic acid × vitamin A cross product.
// Every cell is yielded, empty or not, so downstream keys exist in every
// output row. The union of yielded subgroups is exactly pop and cells are
// pairwise disjoint.
func (f *FortificationStratifier) Group(pop *framework.Snapshot) ([]FortificationGroup, error) {
	folic, err := pop.Strings(f.FolicAcidColumn)
	if err != nil {
		return nil, err
	}
	for i, g := range folic {
		if g != Covered && g != Uncovered {
			return nil, fmt.Errorf("column %q value %q at snapshot row %d is not a folic acid coverage group",
				f.FolicAcidColumn, g, i)
		}
	}
	exposure, err := pop.Strings(f.ExposureColumn)
	if err != nil {
		return nil, err
	}
	ages, err := pop.Floats(f.AgeColumn)
	if err != nil {
		return nil, err
	}
	starts, err := pop.Times(f.StartColumn)
	if err != nil {
		return nil, err
	}

	vitA := make([]string, pop.Len())
	for i := range vitA {
		vitA[i] = f.VitaminACoverage(exposure[i], ages[i], !starts[i].IsZero())
	}

	out := make([]FortificationGroup, 0, len(FolicAcidGroups)*len(VitaminAGroups))
	for _, fg := range FolicAcidGroups {
		for _, vg := range VitaminAGroups {
			fg, vg := fg, vg
			sub := pop.Filter(func(i int) bool { return folic[i] == fg && vitA[i] == vg })
			out = append(out, FortificationGroup{FolicAcid: fg, VitaminA: vg, Rows: sub})
		}
	}
	return out, nil
}
