package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCatalog = `
sources:
  - source_id: book-a
    variable_id: sp
    path: data/book_a.csv
    layout: wide
  - source_id: nipa
    variable_id: sp
    path: data/nipa.csv
    layout: long
variables:
  - variable_id: sp
    target_unit: currency-millions
    priority: [nipa, book-a]
`

func TestLoadCatalog_Valid(t *testing.T) {
	cat, err := LoadCatalog(writeCatalog(t, validCatalog))
	require.NoError(t, err)
	assert.Len(t, cat.Sources, 2)
	assert.Len(t, cat.Variables, 1)

	descs := cat.DescriptorsFor("sp")
	require.Len(t, descs, 2)
	assert.Equal(t, "book-a", descs[0].SourceID)

	spec, ok := cat.Spec("sp")
	require.True(t, ok)
	assert.Equal(t, []string{"nipa", "book-a"}, spec.Priority)

	_, ok = cat.Spec("unknown")
	assert.False(t, ok)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown layout",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: diagonal}
variables:
  - {variable_id: sp, target_unit: currency-millions, priority: [a]}
`,
			wantErr: "unknown layout",
		},
		{
			name: "unknown target unit",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: wide}
variables:
  - {variable_id: sp, target_unit: dollars, priority: [a]}
`,
			wantErr: "unknown unit",
		},
		{
			name: "priority source without descriptor",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: wide}
variables:
  - {variable_id: sp, target_unit: currency-millions, priority: [a, ghost]}
`,
			wantErr: "has no descriptor",
		},
		{
			name: "descriptor source missing from priority",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: wide}
  - {source_id: b, variable_id: sp, path: b.csv, layout: wide}
variables:
  - {variable_id: sp, target_unit: currency-millions, priority: [a]}
`,
			wantErr: `source "b" not in priority list`,
		},
		{
			name: "empty priority",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: wide}
variables:
  - {variable_id: sp, target_unit: currency-millions, priority: []}
`,
			wantErr: "empty priority",
		},
		{
			name: "inverted year range",
			yaml: `
sources:
  - {source_id: a, variable_id: sp, path: a.csv, layout: wide, years: {min: 1990, max: 1960}}
variables:
  - {variable_id: sp, target_unit: currency-millions, priority: [a]}
`,
			wantErr: "years.min",
		},
		{
			name:    "no sources",
			yaml:    "sources: []\nvariables: []\n",
			wantErr: "no sources",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(writeCatalog(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDescriptor_LabelDefaultsToVariableID(t *testing.T) {
	d := Descriptor{VariableID: "sp"}
	assert.Equal(t, "sp", d.Label())

	d.RowLabel = "Surplus value"
	assert.Equal(t, "Surplus value", d.Label())
}
