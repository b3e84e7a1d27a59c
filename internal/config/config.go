// Package config provides YAML run configuration for the observation
// layer: stratification toggles, simulation time bounds, age bins, disease
// models, and fortification column wiring.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/healthsim/stratify/internal/keys"
	"github.com/healthsim/stratify/internal/observers"
	"github.com/healthsim/stratify/internal/stratify"
)

// Config contains all run configuration for the observation layer.
type Config struct {
	// Time bounds the simulated run.
	Time TimeConfig `yaml:"time"`

	// Observers holds per-observer stratification toggles.
	Observers ObserversConfig `yaml:"observers"`

	// AgeBins is the externally supplied age-bin table. Bins must tile
	// the supported age range with half-open [start, end) intervals.
	AgeBins []AgeBinConfig `yaml:"age_bins"`

	// Diseases lists the cause models observed for state person time and
	// transition counts.
	Diseases []DiseaseConfig `yaml:"diseases"`

	// Mortality configures observed causes of death and the
	// life-expectancy-by-age lookup.
	Mortality MortalityConfig `yaml:"mortality"`

	// Fortification wires the fortification stratifier to population
	// columns. Nil disables fortification stratification.
	Fortification *FortificationConfig `yaml:"fortification,omitempty"`

	// Anemia holds the hemoglobin severity cutoffs.
	Anemia AnemiaConfig `yaml:"anemia"`

	// Logging configures log verbosity.
	Logging LoggingConfig `yaml:"logging"`
}

// TimeConfig bounds the simulated run.
type TimeConfig struct {
	Start    time.Time `yaml:"start"`
	End      time.Time `yaml:"end"`
	StepDays float64   `yaml:"step_days"`
}

// StepSize returns the step as a duration.
func (t TimeConfig) StepSize() time.Duration {
	return time.Duration(t.StepDays * 24 * float64(time.Hour))
}

// Stratification toggles the key dimensions for one observer family.
type Stratification struct {
	ByYear bool `yaml:"by_year"`
	BySex  bool `yaml:"by_sex"`
	ByAge  bool `yaml:"by_age"`
}

// Keys converts the toggles to the codec's configuration.
func (s Stratification) Keys() keys.Config {
	return keys.Config{ByYear: s.ByYear, BySex: s.BySex, ByAge: s.ByAge}
}

// ObserversConfig holds per-observer stratification toggles.
type ObserversConfig struct {
	Disease    Stratification `yaml:"disease"`
	Mortality  Stratification `yaml:"mortality"`
	Disability Stratification `yaml:"disability"`

	// Births supports by_year and by_sex only; births carry no age.
	Births Stratification `yaml:"births"`

	Anemia Stratification `yaml:"anemia"`
}

// AgeBinConfig is one half-open [start, end) age bin, in years.
type AgeBinConfig struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// DiseaseConfig declares one cause model.
type DiseaseConfig struct {
	Name        string             `yaml:"name"`
	States      []string           `yaml:"states"`
	Transitions []TransitionConfig `yaml:"transitions"`
}

// TransitionConfig is one observed state change.
type TransitionConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MortalityConfig declares causes of death and the life expectancy table.
type MortalityConfig struct {
	Causes         []string              `yaml:"causes"`
	LifeExpectancy []LifeExpectancyPoint `yaml:"life_expectancy"`
}

// LifeExpectancyPoint is one (age, remaining years) entry, ages ascending.
type LifeExpectancyPoint struct {
	Age   float64 `yaml:"age"`
	Value float64 `yaml:"value"`
}

// FortificationConfig names the population columns the fortification
// stratifier reads.
type FortificationConfig struct {
	FolicAcidColumn     string `yaml:"folic_acid_column"`
	VitaminAColumn      string `yaml:"vitamin_a_exposure_column"`
	VitaminAHigh        string `yaml:"vitamin_a_high_category"`
	CoverageStartColumn string `yaml:"coverage_start_column"`
	AgeColumn           string `yaml:"age_column"`
}

// AnemiaConfig holds hemoglobin cutoffs in g/L.
type AnemiaConfig struct {
	Severe   float64 `yaml:"severe"`
	Moderate float64 `yaml:"moderate"`
	Mild     float64 `yaml:"mild"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", "warn", or
	// "error".
	Level string `yaml:"level"`
}

// Default returns a Config with full stratification and the standard
// under-five severity cutoffs. Time bounds, bins, and models have no
// defaults; a run must declare them.
func Default() *Config {
	full := Stratification{ByYear: true, BySex: true, ByAge: true}
	return &Config{
		Observers: ObserversConfig{
			Disease:    full,
			Mortality:  full,
			Disability: full,
			Births:     Stratification{ByYear: true, BySex: true},
			Anemia:     full,
		},
		Anemia: AnemiaConfig{
			Severe:   observers.DefaultAnemiaThresholds.Severe,
			Moderate: observers.DefaultAnemiaThresholds.Moderate,
			Mild:     observers.DefaultAnemiaThresholds.Mild,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadFromFile loads configuration from a YAML file. Unknown keys are
// configuration errors, reported at load time rather than mid-run.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes over the defaults with strict field checking.
func Parse(data []byte) (*Config, error) {
	config := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for internal consistency. Category
// values feeding the key codec must not contain delimiter substrings.
func (c *Config) Validate() error {
	if !c.Time.Start.Before(c.Time.End) {
		return fmt.Errorf("time.start %v is not before time.end %v", c.Time.Start, c.Time.End)
	}
	if c.Time.StepDays <= 0 {
		return fmt.Errorf("time.step_days must be positive, got %v", c.Time.StepDays)
	}

	if _, err := c.ToAgeBins(); err != nil {
		return err
	}
	for _, b := range c.AgeBins {
		if err := keys.ValidateCategory(b.Name); err != nil {
			return fmt.Errorf("age bin %q: %w", b.Name, err)
		}
	}

	for _, d := range c.Diseases {
		if err := d.ToModel().Validate(); err != nil {
			return err
		}
	}

	if len(c.Mortality.Causes) == 0 {
		return fmt.Errorf("mortality.causes must not be empty")
	}
	for _, cause := range c.Mortality.Causes {
		if err := keys.ValidateCategory(cause); err != nil {
			return fmt.Errorf("mortality cause %q: %w", cause, err)
		}
	}
	if _, err := c.ToLifeExpectancy(); err != nil {
		return err
	}

	if f := c.Fortification; f != nil {
		if f.FolicAcidColumn == "" || f.VitaminAColumn == "" ||
			f.VitaminAHigh == "" || f.CoverageStartColumn == "" || f.AgeColumn == "" {
			return fmt.Errorf("fortification config must name every column")
		}
	}

	if err := c.ToAnemiaThresholds().Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, or empty for default)", c.Logging.Level)
	}
	return nil
}

// ToAgeBins builds the validated age-bin table.
func (c *Config) ToAgeBins() (*stratify.AgeBins, error) {
	bins := make([]stratify.AgeBin, len(c.AgeBins))
	for i, b := range c.AgeBins {
		bins[i] = stratify.AgeBin{Name: b.Name, Start: b.Start, End: b.End}
	}
	return stratify.NewAgeBins(bins)
}

// ToModel converts one disease declaration to its model.
func (d DiseaseConfig) ToModel() observers.DiseaseModel {
	transitions := make([]observers.Transition, len(d.Transitions))
	for i, t := range d.Transitions {
		transitions[i] = observers.Transition{From: t.From, To: t.To}
	}
	return observers.DiseaseModel{Name: d.Name, States: d.States, Transitions: transitions}
}

// ToLifeExpectancy builds the mortality observer's lookup table.
func (c *Config) ToLifeExpectancy() (*observers.LifeExpectancy, error) {
	ages := make([]float64, len(c.Mortality.LifeExpectancy))
	values := make([]float64, len(c.Mortality.LifeExpectancy))
	for i, p := range c.Mortality.LifeExpectancy {
		ages[i] = p.Age
		values[i] = p.Value
	}
	return observers.NewLifeExpectancy(ages, values)
}

// ToStratifier builds the fortification stratifier, or nil when
// fortification is not configured.
func (c *Config) ToStratifier() *stratify.FortificationStratifier {
	f := c.Fortification
	if f == nil {
		return nil
	}
	return &stratify.FortificationStratifier{
		FolicAcidColumn: f.FolicAcidColumn,
		ExposureColumn:  f.VitaminAColumn,
		HighCategory:    f.VitaminAHigh,
		StartColumn:     f.CoverageStartColumn,
		AgeColumn:       f.AgeColumn,
	}
}

// ToAnemiaThresholds returns the severity cutoffs.
func (c *Config) ToAnemiaThresholds() observers.AnemiaThresholds {
	return observers.AnemiaThresholds{
		Severe:   c.Anemia.Severe,
		Moderate: c.Anemia.Moderate,
		Mild:     c.Anemia.Mild,
	}
}
