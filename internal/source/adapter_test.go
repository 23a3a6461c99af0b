package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_WideLayout(t *testing.T) {
	path := writeSourceFile(t, "wide.csv",
		"variable,1958,1959,1960\n"+
			"sp,120.0,125.5,..\n"+
			"k,300,310,320\n")

	desc := Descriptor{
		SourceID:   "book-a",
		VariableID: "sp",
		Path:       path,
		Layout:     LayoutWide,
	}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	assert.Equal(t, "sp", set.VariableID)
	assert.Equal(t, model.UnitCurrencyMillions, set.Unit)
	require.Len(t, set.Observations, 3)

	v, ok := set.Value(1958)
	assert.True(t, ok)
	assert.Equal(t, 120.0, v)

	// ".." marks 1960 explicitly missing, not absent.
	_, ok = set.Value(1960)
	assert.False(t, ok)
	assert.Equal(t, []int{1958, 1959}, set.Years())
}

func TestLoad_WideRowLabel(t *testing.T) {
	path := writeSourceFile(t, "wide.csv",
		"variable,1958\n"+
			"Surplus value,120.0\n")

	desc := Descriptor{
		SourceID:   "book-a",
		VariableID: "sp",
		Path:       path,
		Layout:     LayoutWide,
		RowLabel:   "Surplus value",
	}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	v, ok := set.Value(1958)
	assert.True(t, ok)
	assert.Equal(t, 120.0, v)
}

func TestLoad_WideNonYearHeader(t *testing.T) {
	path := writeSourceFile(t, "wide.csv",
		"variable,1958,total\n"+
			"sp,120.0,245.5\n")

	desc := Descriptor{SourceID: "book-a", VariableID: "sp", Path: path, Layout: LayoutWide}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "not a year")
}

func TestLoad_WideMissingRow(t *testing.T) {
	path := writeSourceFile(t, "wide.csv",
		"variable,1958\n"+
			"k,300\n")

	desc := Descriptor{SourceID: "book-a", VariableID: "sp", Path: path, Layout: LayoutWide}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), `no row labeled "sp"`)
}

func TestLoad_WideRaggedRow(t *testing.T) {
	path := writeSourceFile(t, "wide.csv",
		"variable,1958,1959\n"+
			"sp,120.0\n")

	desc := Descriptor{SourceID: "book-a", VariableID: "sp", Path: path, Layout: LayoutWide}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoad_LongLayout(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,variable,value\n"+
			"1958,sp,120.0\n"+
			"1958,k,300\n"+
			"1959,sp,na\n"+
			"1960,sp,\"1,250.5\"\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	require.Len(t, set.Observations, 3)

	// Thousands separators from hand-extracted tables parse fine.
	v, ok := set.Value(1960)
	assert.True(t, ok)
	assert.Equal(t, 1250.5, v)

	_, ok = set.Value(1959)
	assert.False(t, ok)
}

func TestLoad_LongHeaderCaseInsensitive(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"Year,Variable,Value\n"+
			"1958,sp,120.0\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	require.Len(t, set.Observations, 1)
}

func TestLoad_LongMissingColumns(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,series,value\n"+
			"1958,sp,120.0\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoad_LongNoMatchingRows(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,variable,value\n"+
			"1958,k,300\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoad_YearRangeFilter(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,variable,value\n"+
			"1957,sp,100\n"+
			"1958,sp,120\n"+
			"1990,sp,900\n")

	desc := Descriptor{
		SourceID:   "nipa",
		VariableID: "sp",
		Path:       path,
		Layout:     LayoutLong,
		Years:      &model.YearRange{Min: 1958, Max: 1989},
	}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	assert.Equal(t, []int{1958}, set.Years())
}

func TestLoad_NonNumericValue(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,variable,value\n"+
			"1958,sp,abc\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestLoad_DuplicateYear(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year,variable,value\n"+
			"1958,sp,120\n"+
			"1958,sp,121\n")

	desc := Descriptor{SourceID: "nipa", VariableID: "sp", Path: path, Layout: LayoutLong}

	_, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "duplicate year")
}

func TestLoad_SemicolonDelimiter(t *testing.T) {
	path := writeSourceFile(t, "long.csv",
		"year;variable;value\n"+
			"1958;sp;120.0\n")

	desc := Descriptor{
		SourceID:   "nipa",
		VariableID: "sp",
		Path:       path,
		Layout:     LayoutLong,
		Delimiter:  ";",
	}

	set, err := Load(context.Background(), desc, model.UnitCurrencyMillions)
	require.NoError(t, err)
	require.Len(t, set.Observations, 1)
}

func TestParseValue_MissingTokens(t *testing.T) {
	for _, tok := range []string{"", ".", "..", "-", "na", "N.A.", "n/a", "NaN"} {
		_, missing, err := parseValue(tok)
		require.NoError(t, err, "token %q", tok)
		assert.True(t, missing, "token %q", tok)
	}

	v, missing, err := parseValue(" 1,234.5 ")
	require.NoError(t, err)
	assert.False(t, missing)
	assert.Equal(t, 1234.5, v)
}
