package series

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PolicyKind names the closed set of gap-handling strategies. Nothing
// else is permitted: no mean substitution, no unbounded extrapolation,
// no cross-source backfill.
type PolicyKind string

const (
	PolicyLeaveMissing   PolicyKind = "leave-missing"
	PolicyBoundedLinear  PolicyKind = "bounded-linear-interpolation"
	PolicyManualOverride PolicyKind = "manual-override"
)

// Override is a single explicit substitution, which must carry its
// justification.
type Override struct {
	Year      int     `yaml:"year" json:"year"`
	Value     float64 `yaml:"value" json:"value"`
	Rationale string  `yaml:"rationale" json:"rationale"`
}

// Policy is the declared gap strategy for one variable.
type Policy struct {
	Kind PolicyKind `json:"kind"`

	// MaxGapYears bounds interpolation: a run of missing years longer
	// than this is left alone. Only meaningful for bounded-linear.
	MaxGapYears int `json:"max_gap_years,omitempty"`

	// Override carries the manual-override substitution.
	Override *Override `json:"override,omitempty"`
}

// LeaveMissing is the default policy for undeclared variables.
func LeaveMissing() Policy { return Policy{Kind: PolicyLeaveMissing} }

// UnmarshalYAML accepts either the bare string "leave-missing" or a
// single-key mapping naming the policy and its parameters:
//
//	policy: leave-missing
//	policy: {bounded-linear-interpolation: {max_gap_years: 2}}
//	policy: {manual-override: {year: 1975, value: 0.8, rationale: "..."}}
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if PolicyKind(s) != PolicyLeaveMissing {
			return eris.Errorf("series: policy %q takes parameters; only %q may be bare", s, PolicyLeaveMissing)
		}
		p.Kind = PolicyLeaveMissing
		return nil
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return eris.New("series: policy must be a string or a single-key mapping")
	}

	key := node.Content[0].Value
	body := node.Content[1]
	switch PolicyKind(key) {
	case PolicyBoundedLinear:
		var params struct {
			MaxGapYears int `yaml:"max_gap_years"`
		}
		if err := body.Decode(&params); err != nil {
			return eris.Wrap(err, "series: bounded-linear-interpolation params")
		}
		if params.MaxGapYears < 1 {
			return eris.Errorf("series: bounded-linear-interpolation: max_gap_years must be >= 1, got %d", params.MaxGapYears)
		}
		p.Kind = PolicyBoundedLinear
		p.MaxGapYears = params.MaxGapYears
		return nil
	case PolicyManualOverride:
		var ov Override
		if err := body.Decode(&ov); err != nil {
			return eris.Wrap(err, "series: manual-override params")
		}
		p.Kind = PolicyManualOverride
		p.Override = &ov
		return nil
	case PolicyLeaveMissing:
		p.Kind = PolicyLeaveMissing
		return nil
	default:
		return eris.Errorf("series: unknown gap policy %q (valid: %s, %s, %s)",
			key, PolicyLeaveMissing, PolicyBoundedLinear, PolicyManualOverride)
	}
}

type policyFile struct {
	Policies []struct {
		VariableID string `yaml:"variable_id"`
		Policy     Policy `yaml:"policy"`
	} `yaml:"policies"`
}

// LoadPolicies reads the --gap-policy-config file into a per-variable
// map. Variables absent from the file default to leave-missing at the
// call site.
func LoadPolicies(path string) (map[string]Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "series: read gap policies %s", path)
	}

	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "series: parse gap policies %s", path)
	}

	out := make(map[string]Policy, len(file.Policies))
	for i, entry := range file.Policies {
		if entry.VariableID == "" {
			return nil, eris.Errorf("series: policies[%d]: missing variable_id", i)
		}
		if _, dup := out[entry.VariableID]; dup {
			return nil, eris.Errorf("series: duplicate gap policy for variable %s", entry.VariableID)
		}
		out[entry.VariableID] = entry.Policy
	}
	return out, nil
}
