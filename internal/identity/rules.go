package identity

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Rule pairs a declared identity with its compiled formula.
type Rule struct {
	model.IdentityRule
	formula *Formula
}

// Formula returns the compiled expression.
func (r Rule) CompiledFormula() *Formula { return r.formula }

type rulesFile struct {
	Identities []model.IdentityRule `yaml:"identities"`
}

// LoadRules reads and compiles the --identities-config file. A formula
// whose variables do not exactly match the declared inputs is a
// configuration error: the declaration and the computation must agree.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "identity: read rules %s", path)
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "identity: parse rules %s", path)
	}
	if len(file.Identities) == 0 {
		return nil, eris.Errorf("identity: %s declares no identities", path)
	}

	names := make(map[string]bool, len(file.Identities))
	rules := make([]Rule, 0, len(file.Identities))
	for i, ir := range file.Identities {
		if ir.Name == "" {
			return nil, eris.Errorf("identity: identities[%d]: missing name", i)
		}
		if names[ir.Name] {
			return nil, eris.Errorf("identity: duplicate identity %q", ir.Name)
		}
		names[ir.Name] = true

		if ir.Observed == "" {
			return nil, eris.Errorf("identity: %s: missing observed variable", ir.Name)
		}
		if ir.Tolerance.Absolute < 0 || ir.Tolerance.Relative < 0 {
			return nil, eris.Errorf("identity: %s: negative tolerance", ir.Name)
		}

		f, err := ParseFormula(ir.Formula)
		if err != nil {
			return nil, eris.Wrapf(err, "identity: %s", ir.Name)
		}

		declared := append([]string(nil), ir.Inputs...)
		sort.Strings(declared)
		if !equalStrings(declared, f.Variables()) {
			return nil, eris.Errorf("identity: %s: declared inputs %v do not match formula variables %v",
				ir.Name, declared, f.Variables())
		}

		rules = append(rules, Rule{IdentityRule: ir, formula: f})
	}

	return rules, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
