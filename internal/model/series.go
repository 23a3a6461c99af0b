package model

import "sort"

// ResolutionMethod records how a series point came to hold its value.
type ResolutionMethod string

const (
	ResolutionNative         ResolutionMethod = "native"
	ResolutionMerged         ResolutionMethod = "merged"
	ResolutionGapLinear      ResolutionMethod = "gap-filled:linear"
	ResolutionManualOverride ResolutionMethod = "manual-override"
)

// IsGapFilled reports whether the point was synthesized rather than
// taken from a source.
func (m ResolutionMethod) IsGapFilled() bool {
	return m == ResolutionGapLinear || m == ResolutionManualOverride
}

// SeriesPoint is one resolved year of a variable: value, provenance,
// and how the resolution was made.
type SeriesPoint struct {
	Year     int              `json:"year"`
	Value    float64          `json:"value"`
	SourceID string           `json:"source_id"`
	Method   ResolutionMethod `json:"resolution_method"`
}

// VariableSeries is the year-indexed resolved view of one variable.
// Built by the merger, optionally extended by the gap resolver, read-only
// for everything downstream.
type VariableSeries struct {
	VariableID string              `json:"variable_id"`
	Unit       Unit                `json:"unit"`
	Points     map[int]SeriesPoint `json:"points"`
	// MissingYears are years present in at least one input set's range
	// but resolved to no value. Kept so no year silently disappears.
	MissingYears []int `json:"missing_years,omitempty"`
}

// Value returns the resolved value for a year.
func (s *VariableSeries) Value(year int) (float64, bool) {
	p, ok := s.Points[year]
	if !ok {
		return 0, false
	}
	return p.Value, true
}

// Point returns the full resolved point for a year.
func (s *VariableSeries) Point(year int) (SeriesPoint, bool) {
	p, ok := s.Points[year]
	return p, ok
}

// Years returns all resolved years, ascending.
func (s *VariableSeries) Years() []int {
	years := make([]int, 0, len(s.Points))
	for y := range s.Points {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Clone returns a deep copy. The gap resolver works on a clone so the
// merged series stays immutable.
func (s *VariableSeries) Clone() *VariableSeries {
	points := make(map[int]SeriesPoint, len(s.Points))
	for y, p := range s.Points {
		points[y] = p
	}
	missing := make([]int, len(s.MissingYears))
	copy(missing, s.MissingYears)
	return &VariableSeries{
		VariableID:   s.VariableID,
		Unit:         s.Unit,
		Points:       points,
		MissingYears: missing,
	}
}
