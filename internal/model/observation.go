// Package model holds the core reconciliation data types: observations,
// resolved series, identity rules, and the audit report.
package model

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Unit is the closed enumeration of measurement units an observation
// may carry. Anything else is a configuration error, never a guess.
type Unit string

const (
	UnitCurrencyMillions Unit = "currency-millions"
	UnitCurrencyBillions Unit = "currency-billions"
	UnitFraction         Unit = "fraction-0to1"
	UnitPercent          Unit = "percent-0to100"
	UnitIndex            Unit = "index"
)

// Year bounds accepted for any observation. Data outside this window is
// a source-format problem, not history.
const (
	MinYear = 1900
	MaxYear = 2100
)

// YearRange is an inclusive span of years.
type YearRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether a year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.Min && year <= r.Max
}

// ParseUnit converts a config string into a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitCurrencyMillions, UnitCurrencyBillions, UnitFraction, UnitPercent, UnitIndex:
		return Unit(s), nil
	default:
		return "", eris.Errorf("unknown unit: %q (valid: %s, %s, %s, %s, %s)",
			s, UnitCurrencyMillions, UnitCurrencyBillions, UnitFraction, UnitPercent, UnitIndex)
	}
}

// Observation is a single (variable, year, value, unit, source) data point.
// Value is nil when the source explicitly reports the year as missing.
type Observation struct {
	VariableID string   `json:"variable_id"`
	Year       int      `json:"year"`
	Value      *float64 `json:"value"`
	Unit       Unit     `json:"unit"`
	SourceID   string   `json:"source_id"`
}

// ObservationSet is an ordered collection of observations for one
// (variable, source) pair. Immutable after the adapter builds it;
// normalization returns a new set.
type ObservationSet struct {
	VariableID   string        `json:"variable_id"`
	SourceID     string        `json:"source_id"`
	Unit         Unit          `json:"unit"`
	Observations []Observation `json:"observations"`
}

// NewObservationSet builds a set, sorting observations by year and
// rejecting duplicate or out-of-range years.
func NewObservationSet(variableID, sourceID string, unit Unit, obs []Observation) (*ObservationSet, error) {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	seen := make(map[int]bool, len(sorted))
	for _, o := range sorted {
		if o.Year < MinYear || o.Year > MaxYear {
			return nil, eris.Errorf("observation year %d for %s/%s outside [%d, %d]",
				o.Year, variableID, sourceID, MinYear, MaxYear)
		}
		if seen[o.Year] {
			return nil, eris.Errorf("duplicate year %d for %s/%s", o.Year, variableID, sourceID)
		}
		seen[o.Year] = true
	}

	return &ObservationSet{
		VariableID:   variableID,
		SourceID:     sourceID,
		Unit:         unit,
		Observations: sorted,
	}, nil
}

// Value returns the value for a year, if present and non-missing.
func (s *ObservationSet) Value(year int) (float64, bool) {
	for _, o := range s.Observations {
		if o.Year == year {
			if o.Value == nil {
				return 0, false
			}
			return *o.Value, true
		}
	}
	return 0, false
}

// Years returns all years carrying a non-missing value, ascending.
func (s *ObservationSet) Years() []int {
	years := make([]int, 0, len(s.Observations))
	for _, o := range s.Observations {
		if o.Value != nil {
			years = append(years, o.Year)
		}
	}
	return years
}

// Float is a convenience for building *float64 literals.
func Float(v float64) *float64 { return &v }
