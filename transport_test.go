package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSoilTransportDepositionAddsToTopLayerWhenGrowingSeason(t *testing.T) {
	col, sink := testColumn(t, 5)
	transport := NewSoilTransport(sink)
	site := SiteParameters{NDepositionKgHaYr: 20} // pro-rated over the 200-day growing season used internally

	before := col.Layers[0].NO3
	transport.Step(0, col, site, true, nil)
	require.Greater(t, col.Layers[0].NO3, before)
	require.Greater(t, transport.SeasonTotals.DepositedKgNHa, 0.0)
}

func TestSoilTransportNoDepositionOutsideGrowingSeason(t *testing.T) {
	col, sink := testColumn(t, 5)
	transport := NewSoilTransport(sink)
	site := SiteParameters{NDepositionKgHaYr: 20}

	before := col.Layers[0].NO3
	transport.Step(0, col, site, false, nil)
	require.Equal(t, before, col.Layers[0].NO3)
}

func TestSoilTransportUptakeSinkClampsToAvailability(t *testing.T) {
	col, sink := testColumn(t, 3)
	transport := NewSoilTransport(sink)
	col.Layers[0].NO3 = 0.0001 // tiny pool
	demand := []float64{1e6, 0, 0}

	uptake := transport.applyUptakeSink(col, demand)
	require.GreaterOrEqual(t, col.Layers[0].NO3, 0.0)
	require.LessOrEqual(t, uptake, 1e6)
	require.Greater(t, uptake, 0.0)
}

func TestSoilTransportConvectDisperseKeepsNO3NonNegative(t *testing.T) {
	col, sink := testColumn(t, 5)
	transport := NewSoilTransport(sink)
	for i, l := range col.Layers {
		l.NO3 = 0.001
		l.WaterFlux = 5
		l.Moisture = l.Params.FieldCapacity
		_ = i
	}
	transport.convectDisperse(col)
	for _, l := range col.Layers {
		require.GreaterOrEqual(t, l.NO3, 0.0)
	}
}
