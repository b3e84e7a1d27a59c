package observers

import (
	"strconv"

	"github.com/healthsim/stratify/internal/framework"
	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/stratify"
)

// aggregate reduces one subgroup to a single number.
type aggregate func(sub *framework.Snapshot) (float64, error)

// count is the event count aggregate.
func count(sub *framework.Snapshot) (float64, error) {
	return float64(sub.Len()), nil
}

// personTime returns an aggregate accruing stepYears per subgroup member.
func personTime(stepYears float64) aggregate {
	return func(sub *framework.Snapshot) (float64, error) {
		return float64(sub.Len()) * stepYears, nil
	}
}

// sumOver returns an aggregate summing per-row values over a subgroup.
// perRow is keyed by table row index.
func sumOver(perRow map[int]float64) aggregate {
	return func(sub *framework.Snapshot) (float64, error) {
		total := 0.0
		for _, row := range sub.Rows() {
			total += perRow[row]
		}
		return total, nil
	}
}

// groupCounts applies agg to every (sex, age bin) subgroup of pop enabled
// by cfg and keys the results for measure at year. It iterates the declared
// category sets, not the observed values, so every key in the label space
// is emitted even when its subgroup is empty. With no dimension enabled the
// label space is the single trivial group.
func groupCounts(pop *framework.Snapshot, cfg keys.Config, bins *stratify.AgeBins,
	measure string, year int, agg aggregate) (map[string]float64, error) {

	label := keys.Label{}
	if cfg.ByYear {
		label.Year = strconv.Itoa(year)
	}

	out := make(map[string]float64)

	bySex := []stratify.Labeled{{Label: "", Rows: pop}}
	if cfg.BySex {
		var err error
		bySex, err = stratify.BySex(pop, ColumnSex)
		if err != nil {
			return nil, err
		}
	}
	for _, sexGroup := range bySex {
		label.Sex = sexGroup.Label

		byAge := []stratify.Labeled{{Label: "", Rows: sexGroup.Rows}}
		if cfg.ByAge {
			var err error
			byAge, err = stratify.ByAge(sexGroup.Rows, ColumnAge, bins)
			if err != nil {
				return nil, err
			}
		}
		for _, ageGroup := range byAge {
			label.AgeGroup = ageGroup.Label
			value, err := agg(ageGroup.Rows)
			if err != nil {
				return nil, err
			}
			out[keys.Encode(cfg, measure, label)] = value
		}
	}
	return out, nil
}

// fortifiedGroupCounts is groupCounts with an optional fortification
// stratifier layered outside the sex/age dimensions. When fort is non-nil
// each key gains the folic acid / vitamin A suffix and the label space
// grows by the coverage cross product; empty cells still emit their keys.
func fortifiedGroupCounts(pop *framework.Snapshot, cfg keys.Config, bins *stratify.AgeBins,
	fort *stratify.FortificationStratifier, measure string, year int, agg aggregate) (map[string]float64, error) {

	if fort == nil {
		return groupCounts(pop, cfg, bins, measure, year, agg)
	}

	cells, err := fort.Group(pop)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, cell := range cells {
		part, err := groupCounts(cell.Rows, cfg, bins, measure, year, agg)
		if err != nil {
			return nil, err
		}
		for k, v := range part {
			out[keys.WithFortification(k, cell.FolicAcid, cell.VitaminA)] = v
		}
	}
	return out, nil
}
