package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedKey is wrapped by every DecodeError.
var ErrMalformedKey = errors.New("malformed result key")

// DecodeError reports a key that does not match its family's grammar.
type DecodeError struct {
	Key     string
	Grammar string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed result key %q: expected grammar %s", e.Key, e.Grammar)
}

func (e *DecodeError) Unwrap() error { return ErrMalformedKey }

// Schema identifies the measure family that produced a key. Keys are not
// self-describing; the decoder must be told a priori which family's grammar
// to apply.
type Schema int

const (
	// SchemaStratified covers person_time and other cause-less counts:
	// <measure>_in_<year>_among_<sex>_in_age_group_<age>_folic_acid_<g>_vitamin_a_<g>
	SchemaStratified Schema = iota

	// SchemaStratifiedCause additionally splits the measure on _due_to_:
	// <measure>_due_to_<cause>_in_<year>_among_<sex>_in_age_group_<age>_folic_acid_<g>_vitamin_a_<g>
	SchemaStratifiedCause

	// SchemaBirths covers live birth counts (no age group):
	// <measure>_in_<year>_among_<sex>_folic_acid_<g>_vitamin_a_<g>
	SchemaBirths

	// SchemaBirthWeight covers birth weight statistics:
	// <measure>_in_<year>_among_<sex>_iron_fortification_group_<g>
	SchemaBirthWeight

	// SchemaHemoglobin covers hemoglobin statistics (no year):
	// <measure>_among_<sex>_at_age_<age>_status_<status>_responsive_<resp>
	SchemaHemoglobin

	// SchemaAnemia covers anemia severity person time:
	// <measure>_person_time_in_<year>_among_<sex>_in_age_group_<age>
	SchemaAnemia
)

// Field names used in decoded output and tidy tables.
const (
	FieldMeasure    = "measure"
	FieldCause      = "cause"
	FieldYear       = "year"
	FieldSex        = "sex"
	FieldAgeGroup   = "age_group"
	FieldAge        = "age"
	FieldStatus     = "status"
	FieldResponsive = "responsive"
	FieldFolicAcid  = "folic_acid_fortification_group"
	FieldVitaminA   = "vitamin_a_fortification_group"
	FieldIronGroup  = "iron_fortification_group"
)

// Decoded is the structured form of an encoded key.
type Decoded struct {
	Measure string
	Fields  map[string]string
}

// Decode parses key under the given family schema. It fails with a
// DecodeError when the key does not match the family's delimiter grammar;
// it never silently truncates or mis-assigns fields.
func Decode(key string, schema Schema) (Decoded, error) {
	switch schema {
	case SchemaStratified:
		return decodeStratified(key, false)
	case SchemaStratifiedCause:
		return decodeStratified(key, true)
	case SchemaBirths:
		return decodeBirths(key)
	case SchemaBirthWeight:
		return decodeBirthWeight(key)
	case SchemaHemoglobin:
		return decodeHemoglobin(key)
	case SchemaAnemia:
		return decodeAnemia(key)
	default:
		return Decoded{}, fmt.Errorf("unknown key schema %d", schema)
	}
}

// split cuts s at the first occurrence of delim. The error carries the full
// original key and the grammar description so failures identify themselves.
func split(key, s, delim, grammar string) (left, right string, err error) {
	i := strings.Index(s, delim)
	if i < 0 {
		return "", "", &DecodeError{Key: key, Grammar: grammar}
	}
	return s[:i], s[i+len(delim):], nil
}

func decodeStratified(key string, withCause bool) (Decoded, error) {
	grammar := "<measure>_in_<year>_among_<sex>_in_age_group_<age_group>_folic_acid_<g>_vitamin_a_<g>"
	if withCause {
		grammar = "<measure>_due_to_<cause>" + grammar[len("<measure>"):]
	}
	measure, rest, err := split(key, key, delimYear, grammar)
	if err != nil {
		return Decoded{}, err
	}
	d := Decoded{Measure: measure, Fields: map[string]string{}}
	if withCause {
		m, cause, err := split(key, measure, delimCause, grammar)
		if err != nil {
			return Decoded{}, err
		}
		d.Measure = m
		d.Fields[FieldCause] = cause
	}
	year, rest, err := split(key, rest, delimSex, grammar)
	if err != nil {
		return Decoded{}, err
	}
	// rest is now "<sex>_in_age_group_...": the age-group delimiter begins
	// with "_in_", which cannot appear inside a category value.
	sex, rest, err := split(key, rest, delimAgeGroup, grammar)
	if err != nil {
		return Decoded{}, err
	}
	ageGroup, rest, err := split(key, rest, delimFolicAcid, grammar)
	if err != nil {
		return Decoded{}, err
	}
	folic, vitA, err := split(key, rest, delimVitaminA, grammar)
	if err != nil {
		return Decoded{}, err
	}
	d.Fields[FieldYear] = year
	d.Fields[FieldSex] = sex
	d.Fields[FieldAgeGroup] = ageGroup
	d.Fields[FieldFolicAcid] = folic
	d.Fields[FieldVitaminA] = vitA
	return d, nil
}

func decodeBirths(key string) (Decoded, error) {
	const grammar = "<measure>_in_<year>_among_<sex>_folic_acid_<g>_vitamin_a_<g>"
	measure, rest, err := split(key, key, delimYear, grammar)
	if err != nil {
		return Decoded{}, err
	}
	year, rest, err := split(key, rest, delimSex, grammar)
	if err != nil {
		return Decoded{}, err
	}
	sex, rest, err := split(key, rest, delimFolicAcid, grammar)
	if err != nil {
		return Decoded{}, err
	}
	folic, vitA, err := split(key, rest, delimVitaminA, grammar)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Measure: measure, Fields: map[string]string{
		FieldYear:      year,
		FieldSex:       sex,
		FieldFolicAcid: folic,
		FieldVitaminA:  vitA,
	}}, nil
}

func decodeBirthWeight(key string) (Decoded, error) {
	const grammar = "<measure>_in_<year>_among_<sex>_iron_fortification_group_<g>"
	measure, rest, err := split(key, key, delimYear, grammar)
	if err != nil {
		return Decoded{}, err
	}
	year, rest, err := split(key, rest, delimSex, grammar)
	if err != nil {
		return Decoded{}, err
	}
	sex, group, err := split(key, rest, delimIronGroup, grammar)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Measure: measure, Fields: map[string]string{
		FieldYear:      year,
		FieldSex:       sex,
		FieldIronGroup: group,
	}}, nil
}

func decodeHemoglobin(key string) (Decoded, error) {
	const grammar = "<measure>_among_<sex>_at_age_<age>_status_<status>_responsive_<resp>"
	measure, rest, err := split(key, key, delimSex, grammar)
	if err != nil {
		return Decoded{}, err
	}
	sex, rest, err := split(key, rest, delimAtAge, grammar)
	if err != nil {
		return Decoded{}, err
	}
	age, rest, err := split(key, rest, delimStatus, grammar)
	if err != nil {
		return Decoded{}, err
	}
	status, responsive, err := split(key, rest, delimResponsive, grammar)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Measure: measure, Fields: map[string]string{
		FieldSex:        sex,
		FieldAge:        age,
		FieldStatus:     status,
		FieldResponsive: responsive,
	}}, nil
}

func decodeAnemia(key string) (Decoded, error) {
	const grammar = "<measure>_person_time_in_<year>_among_<sex>_in_age_group_<age_group>"
	measure, rest, err := split(key, key, delimPersonTime+delimYear, grammar)
	if err != nil {
		return Decoded{}, err
	}
	year, rest, err := split(key, rest, delimSex, grammar)
	if err != nil {
		return Decoded{}, err
	}
	sex, ageGroup, err := split(key, rest, delimAgeGroup, grammar)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Measure: measure, Fields: map[string]string{
		FieldYear:     year,
		FieldSex:      sex,
		FieldAgeGroup: ageGroup,
	}}, nil
}
