package monica

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeusypinaConductivityZeroWhenFrozenFully(t *testing.T) {
	require.Zero(t, neusypinaConductivity(1400, 0.3, 0))
}

func TestNeusypinaConductivityGrowsWithMoisture(t *testing.T) {
	dry := neusypinaConductivity(1400, 0.1, 1)
	wet := neusypinaConductivity(1400, 0.4, 1)
	require.Greater(t, wet, dry)
}

func TestSolveTridiagonalLDLReproducesIdentity(t *testing.T) {
	// a=0, b=1, c=0 everywhere: the system is just x = d.
	n := 5
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	d := []float64{1, 2, 3, 4, 5}
	for i := range b {
		b[i] = 1
	}
	x := solveTridiagonalLDL(a, b, c, d)
	require.Equal(t, d, x)
}

func TestSoilTemperatureStepConvergesTowardBaseAtDepth(t *testing.T) {
	sink := NewDiagnosticsSink()
	env := DefaultEnvironmentParameters()
	params := make([]SoilLayerParameters, 10)
	for i := range params {
		params[i] = testLayerParams()
	}
	col := NewSoilColumn(env, params, sink)
	for _, l := range col.Layers {
		l.Temperature = 5
	}
	st := NewSoilTemperature(col, 10, sink)

	for day := 0; day < 60; day++ {
		st.Step(day, 15, 25, 20, nil, 0, 0)
	}
	bottom := col.Layers[len(col.Layers)-1].Temperature
	require.InDelta(t, 10, bottom, 3, "deep layer should trend toward the base temperature")
	require.False(t, math.IsNaN(st.SurfaceTemperature()))
}

func TestSoilTemperatureStepReportsNonFiniteInput(t *testing.T) {
	sink := NewDiagnosticsSink()
	col, _ := testColumn(t, 3)
	st := NewSoilTemperature(col, 8, sink)
	st.Step(0, math.NaN(), 20, 15, nil, 0, 0)

	require.True(t, sink.HasFatal())
}

func TestSoilTemperatureStepUsesSnowOverride(t *testing.T) {
	sink := NewDiagnosticsSink()
	col, _ := testColumn(t, 3)
	st := NewSoilTemperature(col, 8, sink)
	st.Step(0, -10, -2, 10, nil, 50, -1.5)
	require.Equal(t, -1.5, st.SurfaceTemperature())
}
