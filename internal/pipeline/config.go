// Package pipeline orchestrates a reconciliation run: static config
// loading, per-variable adapter → normalizer → merger → gap-resolver
// chains, the identity-validation barrier, and output/archive writing.
package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/okishio-lab/profitrate-cli/internal/identity"
	"github.com/okishio-lab/profitrate-cli/internal/series"
	"github.com/okishio-lab/profitrate-cli/internal/source"
	"github.com/okishio-lab/profitrate-cli/internal/units"
)

// ErrConfiguration marks malformed or incomplete static configuration.
// Fatal for the whole run, raised before any source file is opened.
var ErrConfiguration = eris.New("invalid configuration")

// StaticConfig is the fully loaded, cross-checked configuration of one
// run: the source catalog, unit declarations, gap policies, and
// identity rules.
type StaticConfig struct {
	Catalog  *source.Catalog
	Units    *units.Table
	Policies map[string]series.Policy
	Rules    []identity.Rule
}

// ConfigPaths names the four static config files.
type ConfigPaths struct {
	Sources    string
	Units      string
	GapPolicy  string
	Identities string
}

// LoadStatic loads and cross-validates all static configuration. Any
// problem — unparsable file, unknown unit, a declared source without a
// native unit — aborts here, before any data is touched.
func LoadStatic(paths ConfigPaths) (*StaticConfig, error) {
	cat, err := source.LoadCatalog(paths.Sources)
	if err != nil {
		return nil, eris.Wrap(ErrConfiguration, err.Error())
	}

	table, err := units.LoadTable(paths.Units)
	if err != nil {
		return nil, eris.Wrap(ErrConfiguration, err.Error())
	}

	policies, err := series.LoadPolicies(paths.GapPolicy)
	if err != nil {
		return nil, eris.Wrap(ErrConfiguration, err.Error())
	}

	rules, err := identity.LoadRules(paths.Identities)
	if err != nil {
		return nil, eris.Wrap(ErrConfiguration, err.Error())
	}

	// Every declared source must have a declared native unit. A missing
	// entry would otherwise surface mid-run as a load failure, which is
	// the wrong failure class: this is configuration, so it fails fast.
	for _, desc := range cat.Sources {
		if _, err := table.NativeUnitFor(desc.SourceID, desc.VariableID); err != nil {
			return nil, eris.Wrap(ErrConfiguration, err.Error())
		}
	}

	// Gap policies must reference cataloged variables.
	for variableID := range policies {
		if _, ok := cat.Spec(variableID); !ok {
			return nil, eris.Wrapf(ErrConfiguration, "gap policy for unknown variable %q", variableID)
		}
	}

	return &StaticConfig{
		Catalog:  cat,
		Units:    table,
		Policies: policies,
		Rules:    rules,
	}, nil
}
