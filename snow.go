package monica

import "math"

// Snow is the snow-accumulation/melt subcomponent of SoilMoisture (§4.3), grounded
// on original_source/src/core/soilmoisture.cpp's snow routines.
type Snow struct {
	DepthMM          float64
	DensityKgDm3     float64
	FrozenWaterMM    float64
	LiquidWaterMM    float64
	AccumulatedMM    float64
	MaxDepthMM       float64

	// Parameters (reasonable MONICA defaults; configurable per site).
	TemperatureLowerLimitLiquid float64 // °C, below this all precip is snow
	TemperatureAccumThreshold   float64 // °C, above this all precip is rain
	RainCorrection              float64
	SnowCorrection               float64
	MeltTemperature              float64 // T_melt
	RefreezeTemperature          float64 // T_refreeze
	RefreezeP1, RefreezeP2       float64
	RetentionCapMin, RetentionCapMax float64
	MaxSWEFactor                 float64 // SWE_max/10 normalisation constant
}

// NewSnow returns a Snow subcomponent with the conventional MONICA defaults.
func NewSnow() *Snow {
	return &Snow{
		DensityKgDm3:                0.1,
		TemperatureLowerLimitLiquid: -2,
		TemperatureAccumThreshold:   3,
		RainCorrection:              1.0,
		SnowCorrection:              1.0,
		MeltTemperature:             0,
		RefreezeTemperature:         0,
		RefreezeP1:                  0.05,
		RefreezeP2:                  1.0,
		RetentionCapMin:             0.03,
		RetentionCapMax:             0.1,
		MaxSWEFactor:                1.0,
	}
}

// snowStepResult carries the output the water-budget routine needs.
type snowStepResult struct {
	WaterToInfiltrate float64 // mm
}

// Step advances the snow pack by one day given mean air temperature and net
// precipitation (mm), per the six numbered sub-steps of §4.3.
func (s *Snow) Step(tmean, netPrecip float64) snowStepResult {
	// 1. Split net precipitation into rain/snow fractions, linear between the
	// lower liquid-water limit and the accumulation threshold.
	var rainFrac float64
	switch {
	case tmean <= s.TemperatureLowerLimitLiquid:
		rainFrac = 0
	case tmean >= s.TemperatureAccumThreshold:
		rainFrac = 1
	default:
		rainFrac = (tmean - s.TemperatureLowerLimitLiquid) / (s.TemperatureAccumThreshold - s.TemperatureLowerLimitLiquid)
	}
	rain := netPrecip * rainFrac * s.RainCorrection
	snowfall := netPrecip * (1 - rainFrac) * s.SnowCorrection

	// 2. Snowmelt.
	meltingFactor := math.Min(4.7, 1.4*s.DensityKgDm3/0.1)
	var melt float64
	if tmean > s.MeltTemperature && s.FrozenWaterMM > 0 {
		melt = math.Min(s.FrozenWaterMM, meltingFactor*(tmean-s.MeltTemperature))
	}

	// 3. Refreeze.
	var refreeze float64
	if tmean < s.RefreezeTemperature {
		refreeze = s.RefreezeP1 * math.Pow(s.RefreezeTemperature-tmean, s.RefreezeP2)
		if refreeze > s.LiquidWaterMM {
			refreeze = s.LiquidWaterMM
		}
	}

	// 4. Update frozen/liquid stores; SWE.
	s.FrozenWaterMM += snowfall - melt + refreeze
	if s.FrozenWaterMM < 0 {
		s.FrozenWaterMM = 0
	}
	s.LiquidWaterMM += rain + melt - refreeze
	if s.LiquidWaterMM < 0 {
		s.LiquidWaterMM = 0
	}
	swe := s.FrozenWaterMM + s.LiquidWaterMM
	s.AccumulatedMM += snowfall
	if swe > s.MaxDepthMM {
		s.MaxDepthMM = swe
	}

	// 5. Retention capacity; release excess liquid.
	var released float64
	if swe > 0 {
		cap := s.MaxSWEFactor * s.MaxDepthMM / 10 / s.DensityKgDm3
		if cap < s.RetentionCapMin {
			cap = s.RetentionCapMin
		}
		if cap > s.RetentionCapMax {
			cap = s.RetentionCapMax
		}
		capMM := cap * swe
		if s.LiquidWaterMM > capMM {
			released = s.LiquidWaterMM - capMM
			s.LiquidWaterMM = capMM
		}
	}

	// 6. Recompute depth; clear out if negligible.
	swe = s.FrozenWaterMM + s.LiquidWaterMM
	if s.DensityKgDm3 <= 0 {
		s.DensityKgDm3 = 0.1
	}
	s.DepthMM = swe / s.DensityKgDm3
	if s.DepthMM < 0.01 {
		s.FrozenWaterMM = 0
		s.LiquidWaterMM = 0
		s.DepthMM = 0
		s.MaxDepthMM = 0
		return snowStepResult{WaterToInfiltrate: netPrecip}
	}
	return snowStepResult{WaterToInfiltrate: released}
}
