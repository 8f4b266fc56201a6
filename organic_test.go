package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testOrganicFertiliser() OrganicFertiliserParameters {
	return OrganicFertiliserParameters{
		Name:                 "urea",
		AOMSlowDecCoeffStd:   0.02,
		AOMFastDecCoeffStd:   0.1,
		PartAOMSlowToSMBSlow: 0.6,
		PartAOMSlowToSMBFast: 0.4,
		CNRatioAOMSlow:       15,
		CNRatioAOMFast:       20,
		DryMatterContent:     1.0,
		NH4Content:           0,
		NConcentration:       1.0, // pure N by mass, so 100 kg "fresh matter" == 100 kg N
		PartToSlow:           0.3,
		PartToFast:           0.3,
	}
}

func TestAddOrganicMatterIncreasesTopLayerCarbamide(t *testing.T) {
	col, _ := testColumn(t, 5)
	organic := NewSoilOrganic(NewDiagnosticsSink())

	before := col.Layers[0].Carbamide
	organic.AddOrganicMatter(col, testOrganicFertiliser(), 100, 0)

	expected := before + (100.0/10000.0)/col.Layers[0].Thickness
	require.InDelta(t, expected, col.Layers[0].Carbamide, 1e-9)
	require.Len(t, col.Layers[0].AOMPools, 1)
}

func TestUreaMonotonicallyConvertsToNH4OverSubsequentDays(t *testing.T) {
	col, sink := testColumn(t, 5)
	for _, l := range col.Layers {
		l.Params.PH = 6.5
		l.Temperature = 15
		l.Moisture = l.Params.FieldCapacity
	}
	organic := NewSoilOrganic(sink)
	organic.AddOrganicMatter(col, testOrganicFertiliser(), 100, 0)

	prevCarbamide := col.Layers[0].Carbamide
	prevNH4 := col.Layers[0].NH4
	for day := 0; day < 5; day++ {
		organic.Step(col, day, 0, 15, 1, nil)
		require.LessOrEqual(t, col.Layers[0].Carbamide, prevCarbamide+1e-12)
		require.GreaterOrEqual(t, col.Layers[0].NH4, prevNH4-1e-12)
		prevCarbamide = col.Layers[0].Carbamide
		prevNH4 = col.Layers[0].NH4
	}
	require.Greater(t, organic.SeasonTotals.NH3Volatilised, 0.0)
}

func TestMITClampsDecayToAvailablePool(t *testing.T) {
	col, sink := testColumn(t, 3)
	l := col.Layers[0]
	l.SOMFast = 1e-9
	l.Temperature = 20
	l.Moisture = l.Params.FieldCapacity
	organic := NewSoilOrganic(sink)

	nBalance, co2 := organic.mit(l, tempFunction(20), moistureFunction(l.Moisture, l.Params.FieldCapacity, l.Params.Saturation), 0, 0)
	_ = nBalance
	_ = co2
	require.GreaterOrEqual(t, l.SOMFast, 0.0)
}

func TestDenitrificationNeverExceedsAvailableNO3(t *testing.T) {
	col, sink := testColumn(t, 3)
	l := col.Layers[0]
	l.NO3 = 0.0001
	l.Temperature = 25
	l.Moisture = l.Params.Saturation
	organic := NewSoilOrganic(sink)
	organic.SpecAnaerobDenitrification = 1000 // force an implausibly large potential rate
	organic.Step(col, 0, 0, 25, 1, nil)
	require.GreaterOrEqual(t, l.NO3, 0.0)
}
