package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testClimateSeries(n int, tmean float64) *ClimateSeries {
	days := make([]ClimateDay, n)
	for i := range days {
		days[i] = ClimateDay{
			Year: 2020, Month: 1, Day: (i % 28) + 1,
			TMean: tmean, TMax: tmean + 5, TMin: tmean - 5,
			GlobalRadiation: 12, RelativeHumidity: 0.65, WindSpeed: 2,
		}
	}
	return &ClimateSeries{Days: days}
}

func testSimulation(t *testing.T, days int) *Simulation {
	t.Helper()
	layers := make([]SoilLayerParameters, 10)
	for i := range layers {
		layers[i] = testLayerParams()
	}
	env := DefaultEnvironmentParameters()
	climate := testClimateSeries(days, 10)
	plan := &ManagementPlan{}
	return NewSimulation(testSite(), env, layers, climate, plan, 9)
}

func TestSimulationRunProducesOneObservationPerDay(t *testing.T) {
	sim := testSimulation(t, 5)
	err := sim.Run()
	require.NoError(t, err)
	require.Len(t, sim.Observations, 5)
}

func TestSimulationStepOrderingLeavesNonNegativePools(t *testing.T) {
	sim := testSimulation(t, 20)
	require.NoError(t, sim.Run())
	for _, l := range sim.Column.Layers {
		require.GreaterOrEqual(t, l.NH4, 0.0)
		require.GreaterOrEqual(t, l.NO2, 0.0)
		require.GreaterOrEqual(t, l.NO3, 0.0)
		require.GreaterOrEqual(t, l.Carbamide, 0.0)
		require.LessOrEqual(t, l.Moisture, l.Params.Saturation+1e-6)
	}
}

func TestSimulationFatalOnBadClimateRecord(t *testing.T) {
	sim := testSimulation(t, 1)
	sim.Climate.Days[0].TMax = sim.Climate.Days[0].TMin - 1 // tmax < tmin
	err := sim.Run()
	require.Error(t, err)
}

func TestSimulationSowAndHarvestLifecycle(t *testing.T) {
	sim := testSimulation(t, 3)
	sim.CropCatalogue["wheat"] = testCropParameters()
	sim.Plan.Events = []ManagementEvent{
		{Year: 2020, Month: 1, Day: 1, Kind: ActionSow, CropID: "wheat"},
		{Year: 2020, Month: 1, Day: 3, Kind: ActionHarvest},
	}

	require.NoError(t, sim.Run())
	require.Nil(t, sim.Crop, "crop should be cleared after harvest")
	require.NotEmpty(t, sim.Observations[0].Crop, "day 1 observation should show the planted crop")
}

func TestSimulationMineralFertiliserEventAppliesOnScheduledDay(t *testing.T) {
	sim := testSimulation(t, 2)
	sim.Plan.Events = []ManagementEvent{
		{Year: 2020, Month: 1, Day: 1, Kind: ActionMineralFertiliser,
			MineralFertiliser: MineralFertiliserParameters{NH4Fraction: 1}, MineralAmountKgHa: 50},
	}
	before := sim.Column.Layers[0].NH4
	require.NoError(t, sim.Run())
	require.Greater(t, sim.Column.Layers[0].NH4, before-1e-9)
}
