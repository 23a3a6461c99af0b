package identity

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// SkipNoReference marks a year where the formula evaluated but the
// observed variable has no published value to compare against.
const SkipNoReference = "no-reference"

// SkipMissingInput marks a year where at least one input series lacks a
// value. A recorded skip, not an error.
const SkipMissingInput = "missing-input"

// Validate evaluates one rule over every year any involved series
// covers. Years where all inputs resolve and the observed variable has a
// value yield ValidationResults; everything else yields a skip. Results
// record which inputs were gap-filled so filled points are never folded
// into native error statistics.
func Validate(rule Rule, seriesByVar map[string]*model.VariableSeries) ([]model.ValidationResult, []model.IdentitySkip) {
	years := involvedYears(rule, seriesByVar)

	var results []model.ValidationResult
	var skips []model.IdentitySkip

	for _, year := range years {
		values := make(map[string]float64, len(rule.Inputs))
		var missing, filled []string
		for _, input := range rule.Inputs {
			s, ok := seriesByVar[input]
			if !ok {
				missing = append(missing, input)
				continue
			}
			p, ok := s.Point(year)
			if !ok {
				missing = append(missing, input)
				continue
			}
			values[input] = p.Value
			if p.Method.IsGapFilled() {
				filled = append(filled, input)
			}
		}

		if len(missing) > 0 {
			skips = append(skips, model.IdentitySkip{
				IdentityName:  rule.Name,
				Year:          year,
				Reason:        SkipMissingInput,
				MissingInputs: missing,
			})
			continue
		}

		observedSeries, ok := seriesByVar[rule.Observed]
		var observedPoint model.SeriesPoint
		if ok {
			observedPoint, ok = observedSeries.Point(year)
		}
		if !ok {
			skips = append(skips, model.IdentitySkip{
				IdentityName: rule.Name,
				Year:         year,
				Reason:       SkipNoReference,
			})
			continue
		}

		expected, err := rule.CompiledFormula().Eval(values)
		if err != nil {
			skips = append(skips, model.IdentitySkip{
				IdentityName: rule.Name,
				Year:         year,
				Reason:       err.Error(),
			})
			continue
		}

		observed := observedPoint.Value
		if observedPoint.Method.IsGapFilled() {
			filled = append(filled, rule.Observed)
		}

		absErr := math.Abs(expected - observed)
		var relErr *float64
		if observed != 0 {
			relErr = model.Float(absErr / math.Abs(observed))
		}

		results = append(results, model.ValidationResult{
			IdentityName:    rule.Name,
			Year:            year,
			Expected:        expected,
			Observed:        observed,
			AbsoluteError:   absErr,
			RelativeError:   relErr,
			Classification:  classify(absErr, relErr, rule.Tolerance),
			GapFilledInputs: filled,
		})
	}

	zap.L().Debug("validated identity",
		zap.String("component", "identity"),
		zap.String("identity", rule.Name),
		zap.Int("results", len(results)),
		zap.Int("skips", len(skips)),
	)

	return results, skips
}

// classify buckets a single year's error against the rule's tolerance.
// Either bound passing is enough; when relative error is undefined
// (observed == 0) only the absolute band applies.
func classify(absErr float64, relErr *float64, tol model.Tolerance) model.Classification {
	if absErr == 0 {
		return model.ClassMatch
	}
	if absErr <= tol.Absolute {
		return model.ClassWithinTolerance
	}
	if relErr != nil && *relErr <= tol.Relative {
		return model.ClassWithinTolerance
	}
	return model.ClassFlagged
}

// involvedYears returns the sorted union of years across the rule's
// inputs and observed series.
func involvedYears(rule Rule, seriesByVar map[string]*model.VariableSeries) []int {
	seen := make(map[int]bool)
	names := append([]string{rule.Observed}, rule.Inputs...)
	for _, name := range names {
		s, ok := seriesByVar[name]
		if !ok {
			continue
		}
		for y := range s.Points {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
