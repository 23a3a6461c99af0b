package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"currency-millions", UnitCurrencyMillions, false},
		{"currency-billions", UnitCurrencyBillions, false},
		{"fraction-0to1", UnitFraction, false},
		{"percent-0to100", UnitPercent, false},
		{"index", UnitIndex, false},
		{"dollars", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewObservationSet_SortsByYear(t *testing.T) {
	set, err := NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 1975, Value: Float(3)},
		{Year: 1958, Value: Float(1)},
		{Year: 1960, Value: Float(2)},
	})
	require.NoError(t, err)
	require.Len(t, set.Observations, 3)
	assert.Equal(t, 1958, set.Observations[0].Year)
	assert.Equal(t, 1960, set.Observations[1].Year)
	assert.Equal(t, 1975, set.Observations[2].Year)
}

func TestNewObservationSet_RejectsDuplicateYear(t *testing.T) {
	_, err := NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 1960, Value: Float(1)},
		{Year: 1960, Value: Float(2)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate year 1960")
}

func TestNewObservationSet_RejectsOutOfRangeYear(t *testing.T) {
	_, err := NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 1899, Value: Float(1)},
	})
	assert.Error(t, err)

	_, err = NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 2101, Value: Float(1)},
	})
	assert.Error(t, err)
}

func TestObservationSet_Value(t *testing.T) {
	set, err := NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 1958, Value: Float(42.5)},
		{Year: 1959, Value: nil}, // explicitly missing
	})
	require.NoError(t, err)

	v, ok := set.Value(1958)
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)

	_, ok = set.Value(1959)
	assert.False(t, ok)

	_, ok = set.Value(1970)
	assert.False(t, ok)
}

func TestObservationSet_YearsSkipsMissing(t *testing.T) {
	set, err := NewObservationSet("sp", "nipa", UnitCurrencyMillions, []Observation{
		{Year: 1958, Value: Float(1)},
		{Year: 1959, Value: nil},
		{Year: 1960, Value: Float(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1958, 1960}, set.Years())
}

func TestYearRange_Contains(t *testing.T) {
	r := YearRange{Min: 1958, Max: 1989}
	assert.True(t, r.Contains(1958))
	assert.True(t, r.Contains(1989))
	assert.False(t, r.Contains(1957))
	assert.False(t, r.Contains(1990))
}
