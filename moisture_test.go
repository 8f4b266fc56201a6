package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSite() SiteParameters {
	return SiteParameters{
		LatitudeDeg:         52,
		HeightAboveSeaLevel: 50,
		GroundwaterMinDepth: 20,
		GroundwaterMaxDepth: 20,
	}
}

func TestSoilMoistureDryWarmNoCropDayDecreasesTopMoisture(t *testing.T) {
	col, sink := testColumn(t, 5)
	for _, l := range col.Layers {
		l.Moisture = l.Params.FieldCapacity
	}
	moisture := NewSoilMoisture(col, sink)

	before := col.Layers[0].Moisture
	climate := ClimateDay{TMean: 20, TMax: 25, TMin: 15, GlobalRadiation: 20, RelativeHumidity: 0.6, WindSpeed: 2}
	moisture.Step(0, climate, testSite(), nil, 0)

	require.Zero(t, moisture.LastRunoff)
	require.Less(t, col.Layers[0].Moisture, before, "moisture should decrease under ET with no rainfall")
}

func TestSoilMoistureHeavyRainfallInfiltrates(t *testing.T) {
	col, sink := testColumn(t, 5)
	for _, l := range col.Layers {
		l.Moisture = l.Params.PermanentWiltingPoint
	}
	moisture := NewSoilMoisture(col, sink)

	climate := ClimateDay{TMean: 10, TMax: 12, TMin: 8, GlobalRadiation: 10, RelativeHumidity: 0.7, WindSpeed: 1, Precipitation: 50}
	col.SurfaceWaterStorage = 50
	moisture.Step(0, climate, testSite(), nil, 0)

	require.Greater(t, moisture.LastInfiltration, 0.0)
	require.LessOrEqual(t, moisture.LastInfiltration, 50.0)
}

func TestSoilMoistureFrozenTopLayerBlocksInfiltration(t *testing.T) {
	col, sink := testColumn(t, 5)
	moisture := NewSoilMoisture(col, sink)
	col.Layers[0].HydraulicConductivityRedux = 0
	col.SurfaceWaterStorage = 30

	infil, _ := moisture.infiltrate(col)
	require.Zero(t, infil)
}

func TestCapillaryRiseGatedByDistanceToWaterTable(t *testing.T) {
	col, sink := testColumn(t, 30) // 3m column, groundwater beyond the 2.70m gate
	moisture := NewSoilMoisture(col, sink)
	col.GroundwaterLayer = 29
	for _, l := range col.Layers {
		l.Moisture = l.Params.PermanentWiltingPoint
	}
	before := col.Layers[0].Moisture
	moisture.capillaryRise(col, nil)
	require.Equal(t, before, col.Layers[0].Moisture, "capillary rise should not fire beyond the 2.70m gate")
}

func TestPenmanMonteithFAO56ReturnsNonNegative(t *testing.T) {
	climate := ClimateDay{TMean: 20, TMax: 28, TMin: 12, GlobalRadiation: 22, RelativeHumidity: 0.5, WindSpeed: 3}
	env := DefaultEnvironmentParameters()
	et0 := penmanMonteithFAO56(climate, env, testSite())
	require.Greater(t, et0, 0.0)
}
