// Package series builds the resolved year-indexed view of one variable:
// merging normalized observation sets under an explicit source-priority
// policy, then applying a declared gap policy. Both operations return
// new values; inputs are never mutated.
package series

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Merge combines observation sets for one variable into a single series.
// For each year: one source with a value wins outright (native); several
// sources with values resolve by priority order (merged) and the losers
// are recorded as a conflict; no source with a value leaves the year
// missing for the gap resolver. Output is deterministic for fixed inputs
// and priority.
func Merge(sets []*model.ObservationSet, priority []string) (*model.VariableSeries, []model.MergeConflict, error) {
	if len(sets) == 0 {
		return nil, nil, eris.New("series: merge needs at least one observation set")
	}

	variableID := sets[0].VariableID
	unit := sets[0].Unit
	rank := make(map[string]int, len(priority))
	for i, s := range priority {
		rank[s] = i
	}

	bySource := make(map[string]*model.ObservationSet, len(sets))
	for _, s := range sets {
		if s.VariableID != variableID {
			return nil, nil, eris.Errorf("series: mixed variables in merge: %s and %s", variableID, s.VariableID)
		}
		if s.Unit != unit {
			return nil, nil, eris.Errorf("series: %s: mixed units in merge: %s (%s) and %s (%s); normalize first",
				variableID, unit, sets[0].SourceID, s.Unit, s.SourceID)
		}
		if _, ok := rank[s.SourceID]; !ok {
			return nil, nil, eris.Errorf("series: %s: source %s not in priority list", variableID, s.SourceID)
		}
		if _, dup := bySource[s.SourceID]; dup {
			return nil, nil, eris.Errorf("series: %s: duplicate set for source %s", variableID, s.SourceID)
		}
		bySource[s.SourceID] = s
	}

	// Union of every year any set mentions, valued or explicitly missing.
	// No year may silently disappear.
	yearSet := make(map[int]bool)
	for _, s := range sets {
		for _, o := range s.Observations {
			yearSet[o.Year] = true
		}
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	out := &model.VariableSeries{
		VariableID: variableID,
		Unit:       unit,
		Points:     make(map[int]model.SeriesPoint, len(years)),
	}
	var conflicts []model.MergeConflict

	for _, year := range years {
		type candidate struct {
			sourceID string
			value    float64
		}
		var candidates []candidate
		for _, sourceID := range priority {
			s, ok := bySource[sourceID]
			if !ok {
				continue
			}
			if v, ok := s.Value(year); ok {
				candidates = append(candidates, candidate{sourceID, v})
			}
		}

		switch len(candidates) {
		case 0:
			out.MissingYears = append(out.MissingYears, year)
		case 1:
			out.Points[year] = model.SeriesPoint{
				Year:     year,
				Value:    candidates[0].value,
				SourceID: candidates[0].sourceID,
				Method:   model.ResolutionNative,
			}
		default:
			chosen := candidates[0]
			out.Points[year] = model.SeriesPoint{
				Year:     year,
				Value:    chosen.value,
				SourceID: chosen.sourceID,
				Method:   model.ResolutionMerged,
			}
			rejected := make([]model.RejectedValue, 0, len(candidates)-1)
			for _, c := range candidates[1:] {
				rejected = append(rejected, model.RejectedValue{
					SourceID: c.sourceID,
					Value:    c.value,
					Delta:    chosen.value - c.value,
				})
			}
			conflicts = append(conflicts, model.MergeConflict{
				VariableID:   variableID,
				Year:         year,
				ChosenSource: chosen.sourceID,
				ChosenValue:  chosen.value,
				Rejected:     rejected,
				Rationale:    fmt.Sprintf("source priority: %s outranks %s", chosen.sourceID, rejectedIDs(rejected)),
			})
		}
	}

	zap.L().Debug("merged series",
		zap.String("component", "series"),
		zap.String("variable", variableID),
		zap.Int("points", len(out.Points)),
		zap.Int("missing", len(out.MissingYears)),
		zap.Int("conflicts", len(conflicts)),
	)

	return out, conflicts, nil
}

func rejectedIDs(rejected []model.RejectedValue) string {
	ids := make([]string, len(rejected))
	for i, r := range rejected {
		ids[i] = r.SourceID
	}
	s := ids[0]
	for _, id := range ids[1:] {
		s += ", " + id
	}
	return s
}
