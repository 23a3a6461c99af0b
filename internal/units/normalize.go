package units

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// ErrUnsupportedConversion means the requested (from, to) pair is not in
// the declared conversion table. There is no fallback: a scaling factor
// that is not written down does not exist.
var ErrUnsupportedConversion = eris.New("unsupported unit conversion")

// Normalize returns a new observation set with every value expressed in
// the target unit. The input set is never modified.
func (t *Table) Normalize(set *model.ObservationSet, target model.Unit) (*model.ObservationSet, error) {
	if _, err := model.ParseUnit(string(target)); err != nil {
		return nil, err
	}

	rule, ok := t.rule(set.Unit, target)
	if !ok {
		// Same unit with no declared rule is the identity. An index ->
		// index pair may still carry a rebase rule, so the rule lookup
		// comes first.
		if set.Unit == target {
			return model.NewObservationSet(set.VariableID, set.SourceID, target, set.Observations)
		}
		return nil, eris.Wrapf(ErrUnsupportedConversion, "%s -> %s for %s/%s",
			set.Unit, target, set.SourceID, set.VariableID)
	}

	var converted []model.Observation
	var err error
	switch {
	case rule.Multiplier != nil:
		converted = applyMultiplier(set, target, *rule.Multiplier)
	case rule.Rebase != nil:
		converted, err = applyRebase(set, target, rule.Rebase.BaseYear)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("normalized units",
		zap.String("component", "units"),
		zap.String("source", set.SourceID),
		zap.String("variable", set.VariableID),
		zap.String("from", string(set.Unit)),
		zap.String("to", string(target)),
	)

	return model.NewObservationSet(set.VariableID, set.SourceID, target, converted)
}

func applyMultiplier(set *model.ObservationSet, target model.Unit, m float64) []model.Observation {
	out := make([]model.Observation, len(set.Observations))
	for i, o := range set.Observations {
		c := o
		c.Unit = target
		if o.Value != nil {
			c.Value = model.Float(*o.Value * m)
		}
		out[i] = c
	}
	return out
}

// applyRebase divides every value by the series' own value at the base
// year, yielding an index of 1.0 at base. A missing base-year value
// makes the rebase impossible; that is an error, not a guess.
func applyRebase(set *model.ObservationSet, target model.Unit, baseYear int) ([]model.Observation, error) {
	base, ok := set.Value(baseYear)
	if !ok {
		return nil, eris.Errorf("units: rebase of %s/%s needs a value for base year %d",
			set.SourceID, set.VariableID, baseYear)
	}
	if base == 0 {
		return nil, eris.Errorf("units: rebase of %s/%s: base year %d value is zero",
			set.SourceID, set.VariableID, baseYear)
	}

	out := make([]model.Observation, len(set.Observations))
	for i, o := range set.Observations {
		c := o
		c.Unit = target
		if o.Value != nil {
			c.Value = model.Float(*o.Value / base)
		}
		out[i] = c
	}
	return out, nil
}
