package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validRules = `
identities:
  - name: profit-rate
    formula: "SP / (K * u)"
    inputs: [SP, K, u]
    observed: r
    tolerance: {absolute: 0.001, relative: 0.01}
  - name: rate-of-surplus-value
    formula: "S / V"
    inputs: [S, V]
    observed: e
    tolerance: {absolute: 0.005, relative: 0.02}
`

func TestLoadRules_Valid(t *testing.T) {
	rules, err := LoadRules(writeRules(t, validRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	r := rules[0]
	assert.Equal(t, "profit-rate", r.Name)
	assert.Equal(t, "r", r.Observed)
	assert.Equal(t, 0.001, r.Tolerance.Absolute)
	assert.Equal(t, []string{"K", "SP", "u"}, r.CompiledFormula().Variables())
}

func TestLoadRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "inputs missing a formula variable",
			yaml: `
identities:
  - name: profit-rate
    formula: "SP / (K * u)"
    inputs: [SP, K]
    observed: r
`,
			wantErr: "do not match formula variables",
		},
		{
			name: "inputs declare an unused variable",
			yaml: `
identities:
  - name: profit-rate
    formula: "SP / K"
    inputs: [SP, K, u]
    observed: r
`,
			wantErr: "do not match formula variables",
		},
		{
			name: "missing observed",
			yaml: `
identities:
  - name: profit-rate
    formula: "SP / K"
    inputs: [SP, K]
`,
			wantErr: "missing observed",
		},
		{
			name: "negative tolerance",
			yaml: `
identities:
  - name: profit-rate
    formula: "SP / K"
    inputs: [SP, K]
    observed: r
    tolerance: {absolute: -0.1}
`,
			wantErr: "negative tolerance",
		},
		{
			name: "duplicate name",
			yaml: `
identities:
  - {name: x, formula: "a", inputs: [a], observed: r}
  - {name: x, formula: "b", inputs: [b], observed: r}
`,
			wantErr: "duplicate identity",
		},
		{
			name: "unparsable formula",
			yaml: `
identities:
  - {name: x, formula: "a +", inputs: [a], observed: r}
`,
			wantErr: "unexpected",
		},
		{
			name:    "no identities",
			yaml:    "identities: []\n",
			wantErr: "no identities",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(writeRules(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
