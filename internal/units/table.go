// Package units converts observation sets between declared units. The
// conversion table is static configuration; pairs outside it always
// fail. Magnitude-derived scaling factors are deliberately impossible
// to express here.
package units

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// NativeUnit declares the unit one source reports one variable in.
type NativeUnit struct {
	SourceID   string     `yaml:"source_id"`
	VariableID string     `yaml:"variable_id"`
	Unit       model.Unit `yaml:"unit"`
}

// RebaseRule rebases an index series by dividing every value by the
// series' own value at the declared base year.
type RebaseRule struct {
	BaseYear int `yaml:"base_year"`
}

// ConversionRule converts from one unit to another, either by a fixed
// multiplier or by index rebasing. Exactly one of the two must be set.
type ConversionRule struct {
	From       model.Unit  `yaml:"from"`
	To         model.Unit  `yaml:"to"`
	Multiplier *float64    `yaml:"multiplier,omitempty"`
	Rebase     *RebaseRule `yaml:"rebase,omitempty"`
}

type tableFile struct {
	NativeUnits []NativeUnit     `yaml:"native_units"`
	Conversions []ConversionRule `yaml:"conversions"`
}

type sourceKey struct{ sourceID, variableID string }
type unitPair struct{ from, to model.Unit }

// Table holds the declared native units and the conversion matrix.
type Table struct {
	native      map[sourceKey]model.Unit
	conversions map[unitPair]ConversionRule
}

// LoadTable reads and validates the --units-config file.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "units: read table %s", path)
	}

	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "units: parse table %s", path)
	}

	t := &Table{
		native:      make(map[sourceKey]model.Unit, len(file.NativeUnits)),
		conversions: make(map[unitPair]ConversionRule, len(file.Conversions)),
	}

	for i, n := range file.NativeUnits {
		if n.SourceID == "" || n.VariableID == "" {
			return nil, eris.Errorf("units: native_units[%d]: source_id and variable_id are required", i)
		}
		if _, err := model.ParseUnit(string(n.Unit)); err != nil {
			return nil, eris.Wrapf(err, "units: native_units[%d] (%s/%s)", i, n.SourceID, n.VariableID)
		}
		k := sourceKey{n.SourceID, n.VariableID}
		if _, dup := t.native[k]; dup {
			return nil, eris.Errorf("units: duplicate native unit for %s/%s", n.SourceID, n.VariableID)
		}
		t.native[k] = n.Unit
	}

	for i, c := range file.Conversions {
		if _, err := model.ParseUnit(string(c.From)); err != nil {
			return nil, eris.Wrapf(err, "units: conversions[%d]: from", i)
		}
		if _, err := model.ParseUnit(string(c.To)); err != nil {
			return nil, eris.Wrapf(err, "units: conversions[%d]: to", i)
		}
		if (c.Multiplier == nil) == (c.Rebase == nil) {
			return nil, eris.Errorf("units: conversions[%d] (%s -> %s): exactly one of multiplier or rebase is required",
				i, c.From, c.To)
		}
		if c.Multiplier != nil && *c.Multiplier == 0 {
			return nil, eris.Errorf("units: conversions[%d] (%s -> %s): zero multiplier", i, c.From, c.To)
		}
		p := unitPair{c.From, c.To}
		if _, dup := t.conversions[p]; dup {
			return nil, eris.Errorf("units: duplicate conversion %s -> %s", c.From, c.To)
		}
		t.conversions[p] = c
	}

	return t, nil
}

// NativeUnitFor returns the declared unit for a (source, variable) pair.
// Absence is a configuration error, never an inference.
func (t *Table) NativeUnitFor(sourceID, variableID string) (model.Unit, error) {
	u, ok := t.native[sourceKey{sourceID, variableID}]
	if !ok {
		return "", eris.Errorf("units: no native unit declared for %s/%s", sourceID, variableID)
	}
	return u, nil
}

// rule returns the declared conversion for a unit pair.
func (t *Table) rule(from, to model.Unit) (ConversionRule, bool) {
	r, ok := t.conversions[unitPair{from, to}]
	return r, ok
}
