package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSoilLayerSplitsInitialSOC(t *testing.T) {
	p := testLayerParams()
	p.InitialSOC = 0.03
	l := NewSoilLayer(0.1, p)

	socDensity := 0.03 * p.BulkDensity
	require.InDelta(t, socDensity*2./3., l.SOMSlow, 1e-9)
	require.InDelta(t, socDensity*1./3., l.SOMFast, 1e-9)
}

func TestNewSoilLayerUsesCatalogueNMinWhenPositive(t *testing.T) {
	p := testLayerParams()
	p.InitialNH4 = 0.01
	p.InitialNO3 = 0.02
	l := NewSoilLayer(0.1, p)
	require.Equal(t, 0.01, l.NH4)
	require.Equal(t, 0.02, l.NO3)
}

func TestSoilOrganicCarbonFractionZeroWithoutBulkDensity(t *testing.T) {
	l := &SoilLayer{SOMSlow: 1, SOMFast: 1}
	require.Zero(t, l.SoilOrganicCarbonFraction())
}

func TestClampInvariantsMoistureAboveSaturation(t *testing.T) {
	sink := NewDiagnosticsSink()
	l := NewSoilLayer(0.1, testLayerParams())
	l.Moisture = l.Params.Saturation + 0.1
	l.clampInvariants(sink, "test", 1, 0)

	found := false
	for _, d := range sink.All {
		if d.Kind == InvariantViolation {
			found = true
		}
	}
	require.True(t, found)
	// Over-saturation is reported, not silently clamped (only negative moisture is).
	require.Greater(t, l.Moisture, l.Params.Saturation)
}

func TestClampInvariantsNegativeMoistureClampedToZero(t *testing.T) {
	sink := NewDiagnosticsSink()
	l := NewSoilLayer(0.1, testLayerParams())
	l.Moisture = -0.2
	l.clampInvariants(sink, "test", 1, 0)
	require.Zero(t, l.Moisture)
}
