package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testLayerParams() SoilLayerParameters {
	return SoilLayerParameters{
		Sand: 0.4, Clay: 0.2, Stone: 0,
		TextureClass:             "loam",
		PH:                       6.5,
		Lambda:                   1,
		SaturatedConductivityMMd: 50,
		FieldCapacity:            0.3,
		Saturation:               0.45,
		PermanentWiltingPoint:    0.1,
		BulkDensity:              1400,
		InitialSOC:               0.02,
	}
}

func testColumn(t *testing.T, n int) (*SoilColumn, *DiagnosticsSink) {
	t.Helper()
	sink := NewDiagnosticsSink()
	env := DefaultEnvironmentParameters()
	params := make([]SoilLayerParameters, n)
	for i := range params {
		params[i] = testLayerParams()
	}
	return NewSoilColumn(env, params, sink), sink
}

func TestNewSoilColumnSkipsInvalidTexture(t *testing.T) {
	sink := NewDiagnosticsSink()
	env := DefaultEnvironmentParameters()
	bad := testLayerParams()
	bad.Sand, bad.Clay, bad.Stone = 0.6, 0.6, 0
	col := NewSoilColumn(env, []SoilLayerParameters{bad, testLayerParams()}, sink)
	require.Len(t, col.Layers, 1)
	require.True(t, sink.HasFatal())
}

func TestApplyMineralFertiliserSplitsByPartition(t *testing.T) {
	col, _ := testColumn(t, 3)
	partition := MineralFertiliserParameters{NH4Fraction: 0.5, NO3Fraction: 0.3, CarbamideFraction: 0.2}
	col.ApplyMineralFertiliser(partition, 100)

	top := col.Layers[0]
	perM3 := 100.0 / 10000.0 / top.Thickness
	require.InDelta(t, 0.0001+perM3*0.5, top.NH4, 1e-9)
	require.InDelta(t, 0.0001+perM3*0.3, top.NO3, 1e-9)
	require.InDelta(t, perM3*0.2, top.Carbamide, 1e-9)
}

func TestApplyMineralFertiliserViaNMinDefersWhenTooWet(t *testing.T) {
	col, sink := testColumn(t, 5)
	col.Layers[0].Moisture = col.Layers[0].Params.FieldCapacity + 0.05

	applied := col.ApplyMineralFertiliserViaNMin(NMinFertiliserParameters{
		SamplingDepth: 0.3, NTarget: 80, NTarget30cm: 60, MaxApplication: 40,
	})
	require.Zero(t, applied)
	require.Len(t, col.deferredNMin, 1)

	found := false
	for _, d := range sink.All {
		if d.Kind == TransientManagementCondition {
			found = true
		}
	}
	require.True(t, found, "expected a transient-management-condition diagnostic")
}

func TestApplyMineralFertiliserViaNMinSchedulesTopDressingAboveMax(t *testing.T) {
	col, _ := testColumn(t, 5)
	partition := MineralFertiliserParameters{NH4Fraction: 1}
	applied := col.ApplyMineralFertiliserViaNMin(NMinFertiliserParameters{
		Partition: partition, SamplingDepth: 0.3, NTarget: 100, NTarget30cm: 100,
		MaxApplication: 30, TopDressingDelay: 2,
	})
	require.Greater(t, applied, 30.0)
	require.Equal(t, 2, col.topDressing.Delay)
	require.Greater(t, col.topDressing.Amount, 0.0)
}

func TestApplyPossibleTopDressingDecrementsThenApplies(t *testing.T) {
	col, _ := testColumn(t, 3)
	col.topDressing = topDressingRecord{Partition: MineralFertiliserParameters{NH4Fraction: 1}, Amount: 20, Delay: 1}

	col.ApplyPossibleTopDressing()
	require.Equal(t, 0, col.topDressing.Delay)
	require.Equal(t, 20.0, col.topDressing.Amount)

	before := col.Layers[0].NH4
	col.ApplyPossibleTopDressing()
	require.Zero(t, col.topDressing.Amount)
	require.Greater(t, col.Layers[0].NH4, before)

	// idempotent no-op once drained
	col.ApplyPossibleTopDressing()
	require.Zero(t, col.topDressing.Amount)
}

func TestApplyTillageAveragesAcrossLayers(t *testing.T) {
	col, _ := testColumn(t, 5)
	col.Layers[0].NO3 = 0.01
	col.Layers[1].NO3 = 0.03
	col.Layers[2].NO3 = 0.02

	col.ApplyTillage(0.3) // layers 0..2 inclusive (k=3)
	want := (0.01 + 0.03 + 0.02) / 3
	require.InDelta(t, want, col.Layers[0].NO3, 1e-9)
	require.InDelta(t, want, col.Layers[1].NO3, 1e-9)
	require.InDelta(t, want, col.Layers[2].NO3, 1e-9)
}

func TestDeleteAOMPoolRemovesBelowThreshold(t *testing.T) {
	col, _ := testColumn(t, 3)
	id := col.newAOMPoolID()
	pool := &AOMPool{ID: id, CSlow: aomRemovalThreshold / 10, CFast: 0}
	col.Layers[0].AOMPools = append(col.Layers[0].AOMPools, pool)

	col.DeleteAOMPool()
	require.Empty(t, col.Layers[0].AOMPools)
}

func TestClampInvariantsReportsNegativePools(t *testing.T) {
	col, sink := testColumn(t, 2)
	col.Layers[0].NO3 = -0.5
	col.clampInvariants(3)
	require.Zero(t, col.Layers[0].NO3)

	found := false
	for _, d := range sink.All {
		if d.Kind == InvariantViolation && d.Day == 3 {
			found = true
		}
	}
	require.True(t, found)
}

func TestDetectGroundwaterLayerFindsFirstSaturatedFromBottom(t *testing.T) {
	col, _ := testColumn(t, 5)
	col.Layers[3].Moisture = col.Layers[3].Params.Saturation
	col.Layers[4].Moisture = col.Layers[4].Params.Saturation
	idx := col.detectGroundwaterLayer(0, 1.0)
	require.Equal(t, 4, idx)
}
