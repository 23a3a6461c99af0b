package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := LoadTable(writeTable(t, validTable))
	require.NoError(t, err)
	return tbl
}

func mustSet(t *testing.T, unit model.Unit, obs []model.Observation) *model.ObservationSet {
	t.Helper()
	set, err := model.NewObservationSet("sp", "nipa", unit, obs)
	require.NoError(t, err)
	return set
}

func TestNormalize_Multiplier(t *testing.T) {
	tbl := testTable(t)
	set := mustSet(t, model.UnitCurrencyBillions, []model.Observation{
		{Year: 1958, Value: model.Float(1.5)},
		{Year: 1959, Value: nil},
	})

	out, err := tbl.Normalize(set, model.UnitCurrencyMillions)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCurrencyMillions, out.Unit)

	v, ok := out.Value(1958)
	require.True(t, ok)
	assert.Equal(t, 1500.0, v)

	// Explicitly-missing years stay missing.
	_, ok = out.Value(1959)
	assert.False(t, ok)

	// The input set is untouched.
	v, _ = set.Value(1958)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, model.UnitCurrencyBillions, set.Unit)
}

func TestNormalize_PercentToFraction(t *testing.T) {
	tbl := testTable(t)
	set := mustSet(t, model.UnitPercent, []model.Observation{
		{Year: 1958, Value: model.Float(80)},
	})

	out, err := tbl.Normalize(set, model.UnitFraction)
	require.NoError(t, err)
	v, _ := out.Value(1958)
	assert.InDelta(t, 0.8, v, 1e-12)
}

func TestNormalize_SameUnitIsIdentity(t *testing.T) {
	tbl := testTable(t)
	set := mustSet(t, model.UnitCurrencyMillions, []model.Observation{
		{Year: 1958, Value: model.Float(120)},
	})

	out, err := tbl.Normalize(set, model.UnitCurrencyMillions)
	require.NoError(t, err)
	v, _ := out.Value(1958)
	assert.Equal(t, 120.0, v)
}

func TestNormalize_UndeclaredPairFails(t *testing.T) {
	tbl := testTable(t)
	set := mustSet(t, model.UnitCurrencyMillions, []model.Observation{
		{Year: 1958, Value: model.Float(120)},
	})

	// millions -> billions is not declared; the reverse is. No implicit
	// inversion, no magnitude guessing.
	_, err := tbl.Normalize(set, model.UnitCurrencyBillions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestNormalize_Rebase(t *testing.T) {
	tbl := testTable(t)
	set, err := model.NewObservationSet("u", "fed", model.UnitIndex, []model.Observation{
		{Year: 1958, Value: model.Float(50)},
		{Year: 1959, Value: model.Float(75)},
		{Year: 1960, Value: model.Float(100)},
	})
	require.NoError(t, err)

	out, err := tbl.Normalize(set, model.UnitIndex)
	require.NoError(t, err)

	// Same-unit short-circuit applies only when no work is needed;
	// index -> index carries an explicit rebase rule, so values are
	// divided by the 1958 base.
	v, _ := out.Value(1958)
	assert.InDelta(t, 1.0, v, 1e-12)
	v, _ = out.Value(1960)
	assert.InDelta(t, 2.0, v, 1e-12)
}

func TestNormalize_RebaseMissingBaseYear(t *testing.T) {
	tbl := testTable(t)
	set, err := model.NewObservationSet("u", "fed", model.UnitIndex, []model.Observation{
		{Year: 1960, Value: model.Float(100)},
	})
	require.NoError(t, err)

	_, err = tbl.Normalize(set, model.UnitIndex)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base year 1958")
}
