// Package keys implements the encoded-key grammar for simulation results.
// Every observer output is keyed by a string that concatenates a measure
// name with ordered stratification segments, e.g.
//
//	person_time_in_2020_among_male_in_age_group_early_neonatal
//
// The grammar is a frozen textual contract: each measure family has a fixed
// segment order and delimiter set, and decoding splits on those delimiters
// in the same positional order. Changing a delimiter or segment order for
// one family breaks every downstream consumer of that family's columns.
package keys

import (
	"fmt"
	"strings"
)

// Segment delimiters. Category values must never contain any of these
// substrings; this is a precondition on configuration data, checked by
// ValidateCategory at setup rather than on every encode.
const (
	delimYear       = "_in_"
	delimSex        = "_among_"
	delimAgeGroup   = "_in_age_group_"
	delimCause      = "_due_to_"
	delimFolicAcid  = "_folic_acid_"
	delimVitaminA   = "_vitamin_a_"
	delimAtAge      = "_at_age_"
	delimStatus     = "_status_"
	delimResponsive = "_responsive_"
	delimIronGroup  = "_iron_fortification_group_"
	delimPersonTime = "_person_time"
	delimEventCount = "_event_count"
)

// delimiters lists every substring reserved by the key grammar.
var delimiters = []string{
	delimAgeGroup, // before delimYear: contains "_in_"
	delimYear,
	delimSex,
	delimCause,
	delimFolicAcid,
	delimVitaminA,
	delimAtAge,
	delimStatus,
	delimResponsive,
	delimIronGroup,
	delimPersonTime,
	delimEventCount,
}

// Config selects which base stratification segments an observer encodes.
// A disabled dimension's segment is omitted entirely, never replaced with a
// placeholder, so the decode path stays unambiguous.
type Config struct {
	ByYear bool
	BySex  bool
	ByAge  bool
}

// Label carries the stratification values for one encoded key. Only the
// fields relevant to the key's measure family are consulted.
type Label struct {
	Year     string
	Sex      string
	AgeGroup string

	// Fortification add-on, appended by the fortification stratifier.
	FolicAcidGroup string
	VitaminAGroup  string
}

// Encode builds the base key for measure under cfg's enabled dimensions.
func Encode(cfg Config, measure string, l Label) string {
	var b strings.Builder
	b.WriteString(measure)
	if cfg.ByYear {
		b.WriteString(delimYear)
		b.WriteString(l.Year)
	}
	if cfg.BySex {
		b.WriteString(delimSex)
		b.WriteString(l.Sex)
	}
	if cfg.ByAge {
		b.WriteString(delimAgeGroup)
		b.WriteString(l.AgeGroup)
	}
	return b.String()
}

// WithFortification appends the fortification-group suffix to a base key.
func WithFortification(key, folicAcid, vitaminA string) string {
	return key + delimFolicAcid + folicAcid + delimVitaminA + vitaminA
}

// WithIronGroup appends the maternal iron fortification suffix to a base key.
func WithIronGroup(key, group string) string {
	return key + delimIronGroup + group
}

// EncodeHemoglobin builds a hemoglobin key:
//
//	hemoglobin_<stat>_among_<sex>_at_age_<age>_status_<status>_responsive_<resp>
func EncodeHemoglobin(stat, sex, age, status, responsive string) string {
	var b strings.Builder
	b.WriteString("hemoglobin_")
	b.WriteString(stat)
	b.WriteString(delimSex)
	b.WriteString(sex)
	b.WriteString(delimAtAge)
	b.WriteString(age)
	b.WriteString(delimStatus)
	b.WriteString(status)
	b.WriteString(delimResponsive)
	b.WriteString(responsive)
	return b.String()
}

// ValidateCategory reports whether a category value is usable in encoded
// keys, i.e. contains none of the reserved delimiter substrings.
func ValidateCategory(value string) error {
	for _, d := range delimiters {
		if strings.Contains(value, d) {
			return fmt.Errorf("category %q contains the reserved substring %q", value, d)
		}
	}
	return nil
}
