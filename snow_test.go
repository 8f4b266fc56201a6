package monica

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnowStepAccumulatesBelowMeltTemperature(t *testing.T) {
	s := NewSnow()
	res := s.Step(-5, 10)
	require.Zero(t, res.WaterToInfiltrate)
	require.Greater(t, s.FrozenWaterMM, 0.0)
	require.Greater(t, s.DepthMM, 0.0)
}

func TestSnowMeltZeroAtOrBelowMeltTemperatureAndPositiveAbove(t *testing.T) {
	s := NewSnow()
	s.Step(-5, 10) // build up a pack first

	frozenBefore := s.FrozenWaterMM
	s2 := *s
	s2.Step(s2.MeltTemperature, 0)
	require.InDelta(t, frozenBefore, s2.FrozenWaterMM, 1e-9, "no melt at or below T_melt")

	s3 := *s
	s3.Step(s3.MeltTemperature+5, 0)
	require.Less(t, s3.FrozenWaterMM, frozenBefore, "melt strictly above T_melt")
}

func TestSnowPackClearsWhenNegligible(t *testing.T) {
	s := NewSnow()
	s.FrozenWaterMM = 0.001
	s.LiquidWaterMM = 0
	s.DepthMM = 0.005
	res := s.Step(20, 0)
	require.Zero(t, s.DepthMM)
	require.Zero(t, s.FrozenWaterMM)
	require.Equal(t, 0.0, res.WaterToInfiltrate)
}

func TestSnowReleasesMostRainWhenNoExistingPack(t *testing.T) {
	s := NewSnow()
	res := s.Step(20, 15)
	require.Greater(t, res.WaterToInfiltrate, 0.0)
	require.LessOrEqual(t, res.WaterToInfiltrate, 15.0)
}
