package series

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// ErrMissingRationale rejects a manual override with no justification.
// An unexplained substitution is indistinguishable from a mistake.
var ErrMissingRationale = eris.New("manual override requires a rationale")

// Resolve applies a gap policy to a merged series, within bounds,
// returning a new series plus the audit record of every fill. The input
// series is not modified. leave-missing is a no-op by construction.
func Resolve(s *model.VariableSeries, policy Policy, bounds model.YearRange) (*model.VariableSeries, []model.GapAction, error) {
	switch policy.Kind {
	case PolicyLeaveMissing, "":
		return s, nil, nil
	case PolicyBoundedLinear:
		return resolveLinear(s, policy, bounds)
	case PolicyManualOverride:
		return resolveOverride(s, policy, bounds)
	default:
		return nil, nil, eris.Errorf("series: unknown gap policy %q", policy.Kind)
	}
}

// resolveLinear fills each missing year whose flanking valued years are
// no more than MaxGapYears+1 apart, i.e. the run of missing years
// between them is at most MaxGapYears long. Filled points are tagged
// gap-filled:linear and never masquerade as native data.
func resolveLinear(s *model.VariableSeries, policy Policy, bounds model.YearRange) (*model.VariableSeries, []model.GapAction, error) {
	out := s.Clone()
	var actions []model.GapAction

	valued := s.Years()
	if len(valued) < 2 {
		return out, nil, nil
	}

	var stillMissing []int
	for _, year := range s.MissingYears {
		if !bounds.Contains(year) {
			stillMissing = append(stillMissing, year)
			continue
		}
		prev, next, ok := flankingYears(valued, year)
		if !ok || next-prev-1 > policy.MaxGapYears {
			stillMissing = append(stillMissing, year)
			continue
		}

		v0, _ := s.Value(prev)
		v1, _ := s.Value(next)
		filled := v0 + (v1-v0)*float64(year-prev)/float64(next-prev)

		out.Points[year] = model.SeriesPoint{
			Year:   year,
			Value:  filled,
			Method: model.ResolutionGapLinear,
		}
		actions = append(actions, model.GapAction{
			VariableID: s.VariableID,
			Year:       year,
			Policy:     fmt.Sprintf("%s(max_gap_years=%d)", PolicyBoundedLinear, policy.MaxGapYears),
			Value:      filled,
			Method:     model.ResolutionGapLinear,
			Rationale:  fmt.Sprintf("interpolated between %d and %d", prev, next),
		})
	}
	out.MissingYears = stillMissing

	zap.L().Debug("resolved gaps",
		zap.String("component", "series"),
		zap.String("variable", s.VariableID),
		zap.Int("filled", len(actions)),
		zap.Int("still_missing", len(stillMissing)),
	)

	return out, actions, nil
}

// resolveOverride applies one explicit, logged substitution.
func resolveOverride(s *model.VariableSeries, policy Policy, bounds model.YearRange) (*model.VariableSeries, []model.GapAction, error) {
	ov := policy.Override
	if ov == nil {
		return nil, nil, eris.Errorf("series: %s: manual-override policy without parameters", s.VariableID)
	}
	if ov.Rationale == "" {
		return nil, nil, eris.Wrapf(ErrMissingRationale, "variable %s, year %d", s.VariableID, ov.Year)
	}
	if !bounds.Contains(ov.Year) {
		return nil, nil, eris.Errorf("series: %s: override year %d outside bounds [%d, %d]",
			s.VariableID, ov.Year, bounds.Min, bounds.Max)
	}

	out := s.Clone()
	out.Points[ov.Year] = model.SeriesPoint{
		Year:   ov.Year,
		Value:  ov.Value,
		Method: model.ResolutionManualOverride,
	}
	out.MissingYears = removeYear(out.MissingYears, ov.Year)

	action := model.GapAction{
		VariableID: s.VariableID,
		Year:       ov.Year,
		Policy:     string(PolicyManualOverride),
		Value:      ov.Value,
		Method:     model.ResolutionManualOverride,
		Rationale:  ov.Rationale,
	}
	return out, []model.GapAction{action}, nil
}

// flankingYears finds the nearest valued years strictly before and
// after the target. valued must be sorted ascending.
func flankingYears(valued []int, year int) (prev, next int, ok bool) {
	i := sort.SearchInts(valued, year)
	if i == 0 || i == len(valued) {
		return 0, 0, false
	}
	return valued[i-1], valued[i], true
}

func removeYear(years []int, year int) []int {
	out := years[:0:0]
	for _, y := range years {
		if y != year {
			out = append(out, y)
		}
	}
	return out
}
