package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCropParameters() CropParameters {
	return CropParameters{
		Name: "test-crop",
		Stages: []CropStage{
			{Name: "emergence", TemperatureSum: 100, BaseTemperature: 0, OptimumTemperature: 25, KcFactor: 0.4,
				Partitioning: [numOrgans]float64{OrganRoot: 0.5, OrganLeaf: 0.5}, NConcentrationTarget: 0.03},
			{Name: "vegetative", TemperatureSum: 400, BaseTemperature: 0, OptimumTemperature: 25, KcFactor: 0.9,
				Partitioning: [numOrgans]float64{OrganLeaf: 0.4, OrganShoot: 0.4, OrganRoot: 0.2}, NConcentrationTarget: 0.025},
			{Name: "maturity", TemperatureSum: 300, BaseTemperature: 0, OptimumTemperature: 25, KcFactor: 1.1,
				Partitioning: [numOrgans]float64{OrganStorage: 0.8, OrganLeaf: 0.2}, NConcentrationTarget: 0.015},
		},
		SpecificLeafArea:    20,
		AssimilationAMAX:    40,
		MaxRootingDepthM:    1.2,
		RootPenetrationRate: 0.02,
		FrostKillThreshold:  -15,
		HeatStressThreshold: 35,
		IrrigationStartHeatSum: 50,
		IrrigationEndHeatSum:   500,
	}
}

func TestCropCuttingScenario(t *testing.T) {
	// §8 scenario 6: LAI=4, leaf biomass=300 g/m2, cut removing 80% of leaf,
	// exporting 90% of the removed mass.
	c := NewCrop(testCropParameters(), NewDiagnosticsSink())
	c.OrganBiomass[OrganLeaf] = 0.3 // kg/m2 == 300 g/m2
	c.LAI = 4

	residue := c.ApplyCutting([]Organ{OrganLeaf}, 0.8, 0.9)

	expectedRemoved := 0.3 * 0.8
	expectedExported := expectedRemoved * 0.9
	expectedResidue := expectedRemoved - expectedExported

	require.InDelta(t, expectedExported, c.ExportedBiomass[OrganLeaf], 1e-9)
	require.InDelta(t, expectedResidue, residue[OrganLeaf], 1e-9)
	require.InDelta(t, 0.3-expectedRemoved, c.OrganBiomass[OrganLeaf], 1e-9)
	require.InDelta(t, c.OrganBiomass[OrganLeaf]*c.Params.SpecificLeafArea, c.LAI, 1e-9)
}

func TestCropFruitHarvestMovesStorageToYield(t *testing.T) {
	c := NewCrop(testCropParameters(), NewDiagnosticsSink())
	c.OrganBiomass[OrganStorage] = 0.5

	removed, _ := c.ApplyFruitHarvest(0.9)
	require.InDelta(t, 0.45, removed, 1e-9)
	require.InDelta(t, 0.45, c.Yield, 1e-9)
	require.InDelta(t, 0.05, c.OrganBiomass[OrganStorage], 1e-9)
}

func TestCropStageAdvancesWhenTemperatureSumReached(t *testing.T) {
	col, sink := testColumn(t, 10)
	c := NewCrop(testCropParameters(), sink)
	climate := ClimateDay{TMean: 20, TMax: 22, TMin: 18, GlobalRadiation: 15, RelativeHumidity: 0.6, WindSpeed: 2}
	site := testSite()

	for day := 0; day < 10 && c.StageIndex == 0; day++ {
		c.Step(climate, 100+day, site, col, nil)
	}
	require.Greater(t, c.StageIndex, 0, "crop should have advanced past emergence after enough heat sum")
}

func TestCropDoesNotAdvanceStageAtEmergenceWhenFlooded(t *testing.T) {
	col, sink := testColumn(t, 10)
	for _, l := range col.Layers {
		l.Moisture = l.Params.Saturation
	}
	c := NewCrop(testCropParameters(), sink)
	climate := ClimateDay{TMean: 20, TMax: 22, TMin: 18, GlobalRadiation: 15, RelativeHumidity: 0.6, WindSpeed: 2}
	site := testSite()

	for day := 0; day < 10; day++ {
		c.Step(climate, 100+day, site, col, nil)
	}
	require.Equal(t, 0, c.StageIndex, "flooded top layer should gate the emergence transition")
}

func TestCropFrostKillSetsDyingOut(t *testing.T) {
	col, sink := testColumn(t, 10)
	c := NewCrop(testCropParameters(), sink)
	climate := ClimateDay{TMean: -20, TMax: -18, TMin: -22, GlobalRadiation: 5, RelativeHumidity: 0.6, WindSpeed: 2}
	c.Step(climate, 10, testSite(), col, nil)
	require.True(t, c.DyingOut)
}

func TestCropIncorporateExcludesStorageOrgan(t *testing.T) {
	c := NewCrop(testCropParameters(), NewDiagnosticsSink())
	c.OrganBiomass[OrganRoot] = 0.1
	c.OrganBiomass[OrganLeaf] = 0.2
	c.OrganBiomass[OrganShoot] = 0.3
	c.OrganBiomass[OrganStorage] = 0.4
	c.NContent = 0.01

	residueDM, nConc := c.IncorporateCurrentCrop()
	require.InDelta(t, 0.6, residueDM, 1e-9)
	require.InDelta(t, 0.01/1.0, nConc, 1e-9)
}
