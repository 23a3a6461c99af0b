// Package source loads one external data table into a normalized
// observation set. Every structural expectation (layout, unit, encoding)
// is declared up front in the source catalog; nothing is inferred from
// the file itself.
package source

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Layout names the expected shape of a source table.
type Layout string

const (
	// LayoutWide has variable labels in column 0 and years in the header row.
	LayoutWide Layout = "wide"
	// LayoutLong has explicit year, variable, value columns.
	LayoutLong Layout = "long"
)

// Descriptor declares where and how to read one (variable, source) table.
type Descriptor struct {
	SourceID   string `yaml:"source_id" json:"source_id"`
	VariableID string `yaml:"variable_id" json:"variable_id"`
	Path       string `yaml:"path" json:"path"`
	Layout     Layout `yaml:"layout" json:"layout"`

	// RowLabel is the label identifying the variable inside the file
	// (wide: column 0 value; long: the variable column value). Defaults
	// to VariableID.
	RowLabel string `yaml:"row_label,omitempty" json:"row_label,omitempty"`

	// Encoding is an IANA charset for legacy extractions (e.g. latin1).
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`

	// Delimiter overrides the CSV delimiter (e.g. ";" or "\t").
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`

	// Sheet and SkipRows apply to .xlsx sources.
	Sheet    string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	SkipRows int    `yaml:"skip_rows,omitempty" json:"skip_rows,omitempty"`

	// Years optionally restricts which years are read.
	Years *model.YearRange `yaml:"years,omitempty" json:"years,omitempty"`
}

// Label returns the in-file variable label.
func (d Descriptor) Label() string {
	if d.RowLabel != "" {
		return d.RowLabel
	}
	return d.VariableID
}

// VariableSpec declares the reconciliation target for one variable:
// which unit the merged series is expressed in and which source wins a
// conflict (first listed has highest priority).
type VariableSpec struct {
	VariableID string     `yaml:"variable_id" json:"variable_id"`
	TargetUnit model.Unit `yaml:"target_unit" json:"target_unit"`
	Priority   []string   `yaml:"priority" json:"priority"`
}

// Catalog is the parsed --sources-config file.
type Catalog struct {
	Sources   []Descriptor   `yaml:"sources"`
	Variables []VariableSpec `yaml:"variables"`
}

// LoadCatalog reads and validates the source catalog. Validation here is
// structural only; cross-checks against the units table happen at
// pipeline assembly.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read catalog %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, eris.Wrapf(err, "source: parse catalog %s", path)
	}

	if len(cat.Sources) == 0 {
		return nil, eris.Errorf("source: catalog %s declares no sources", path)
	}

	byVariable := make(map[string][]string)
	for i, d := range cat.Sources {
		switch {
		case d.SourceID == "":
			return nil, eris.Errorf("source: sources[%d]: missing source_id", i)
		case d.VariableID == "":
			return nil, eris.Errorf("source: sources[%d] (%s): missing variable_id", i, d.SourceID)
		case d.Path == "":
			return nil, eris.Errorf("source: %s/%s: missing path", d.SourceID, d.VariableID)
		}
		if d.Layout != LayoutWide && d.Layout != LayoutLong {
			return nil, eris.Errorf("source: %s/%s: unknown layout %q (valid: wide, long)",
				d.SourceID, d.VariableID, d.Layout)
		}
		if d.Years != nil && d.Years.Min > d.Years.Max {
			return nil, eris.Errorf("source: %s/%s: years.min %d > years.max %d",
				d.SourceID, d.VariableID, d.Years.Min, d.Years.Max)
		}
		byVariable[d.VariableID] = append(byVariable[d.VariableID], d.SourceID)
	}

	if len(cat.Variables) == 0 {
		return nil, eris.Errorf("source: catalog %s declares no variables", path)
	}

	for i, v := range cat.Variables {
		if v.VariableID == "" {
			return nil, eris.Errorf("source: variables[%d]: missing variable_id", i)
		}
		if _, err := model.ParseUnit(string(v.TargetUnit)); err != nil {
			return nil, eris.Wrapf(err, "source: variable %s: target_unit", v.VariableID)
		}
		if len(v.Priority) == 0 {
			return nil, eris.Errorf("source: variable %s: empty priority list", v.VariableID)
		}
		declared := byVariable[v.VariableID]
		for _, p := range v.Priority {
			if !contains(declared, p) {
				return nil, eris.Errorf("source: variable %s: priority source %q has no descriptor",
					v.VariableID, p)
			}
		}
		// The reverse must hold too: a descriptor outside the priority
		// list would load and then be unrankable at merge time.
		for _, s := range declared {
			if !contains(v.Priority, s) {
				return nil, eris.Errorf("source: variable %s: source %q not in priority list",
					v.VariableID, s)
			}
		}
	}

	return &cat, nil
}

// DescriptorsFor returns the descriptors feeding one variable, in
// catalog order.
func (c *Catalog) DescriptorsFor(variableID string) []Descriptor {
	var out []Descriptor
	for _, d := range c.Sources {
		if d.VariableID == variableID {
			out = append(out, d)
		}
	}
	return out
}

// Spec returns the variable spec for an id.
func (c *Catalog) Spec(variableID string) (VariableSpec, bool) {
	for _, v := range c.Variables {
		if v.VariableID == variableID {
			return v, true
		}
	}
	return VariableSpec{}, false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
