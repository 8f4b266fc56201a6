package monica

import "math"

// Frost is the soil-freezing/thawing subcomponent of SoilMoisture (§4.3), grounded
// on original_source/src/core/soilmoisture.cpp's Stefan-type frost/thaw routines.
type Frost struct {
	FrostDepthM float64
	ThawDepthM  float64

	negativeDegreeDays float64
	frostDays          int

	LatentHeatFusion   float64 // J/kg
	ConductivityFrozen float64 // W/(m*K)
	ConductivityThawed float64 // W/(m*K)
}

// NewFrost returns a Frost subcomponent with conventional constants.
func NewFrost() *Frost {
	return &Frost{
		LatentHeatFusion:   334000,
		ConductivityFrozen: 2.2,
		ConductivityThawed: 1.0,
	}
}

// TemperatureUnderSnow computes the damped surface temperature used when snow
// cover insulates the soil (§4.3 Frost subcomponent step 1): undamped if snow is
// thin or there's no frost depth to insulate against, otherwise damped by the ratio
// of snow depth to frost depth.
func (f *Frost) TemperatureUnderSnow(tmean, snowDepthMM float64) float64 {
	if snowDepthMM < 10 || f.FrostDepthM < 0.01 {
		return tmean
	}
	return tmean / (1 + 10*snowDepthMM/100/f.FrostDepthM)
}

// Step evolves frost and thaw depth by Stefan-type closed-form expressions in
// accumulated negative degree-days, and updates each layer's freeze/thaw state and
// lambda/hydraulic-conductivity reduction factors (§4.3 Frost subcomponent).
func (f *Frost) Step(column *SoilColumn, tmean float64) {
	meanBulkDensity, meanFieldCapacity := column.meanBulkDensityAndFieldCapacity()

	if tmean < 0 {
		f.negativeDegreeDays += -tmean
		f.frostDays++
	} else {
		// Thaw accumulates on the positive side; degrade the negative-degree-day
		// accumulator toward zero as the season warms.
		f.negativeDegreeDays -= tmean
		if f.negativeDegreeDays < 0 {
			f.negativeDegreeDays = 0
		}
	}

	// Stefan equation: depth = sqrt(2*k*DDnegative*seconds-per-day / (L*rho*theta)).
	secondsPerDay := 86400.0
	theta := meanFieldCapacity
	if theta <= 0 {
		theta = 0.3
	}
	if f.negativeDegreeDays > 0 {
		f.FrostDepthM = math.Sqrt(2 * f.ConductivityFrozen * f.negativeDegreeDays * secondsPerDay / (f.LatentHeatFusion * meanBulkDensity * theta))
	} else {
		f.FrostDepthM = 0
	}

	if tmean > 0 {
		thawDDays := tmean * float64(max1(f.frostDays))
		f.ThawDepthM = math.Sqrt(2 * f.ConductivityThawed * thawDDays * secondsPerDay / (f.LatentHeatFusion * meanBulkDensity * theta))
	} else {
		f.ThawDepthM = 0
	}

	cum := 0.0
	for i, l := range column.Layers {
		top := cum
		cum += l.Thickness
		switch {
		case top < f.FrostDepthM:
			l.Frozen = true
			l.LambdaRedux = 0
			if i == 0 {
				l.HydraulicConductivityRedux = 0
			}
		case top < f.ThawDepthM:
			l.Frozen = false
			l.LambdaRedux = 1
			l.HydraulicConductivityRedux = 1
		default:
			l.Frozen = false
			l.LambdaRedux = 1
			l.HydraulicConductivityRedux = 1
		}
	}

	if f.ThawDepthM >= f.FrostDepthM && f.FrostDepthM > 0 {
		f.FrostDepthM = 0
		f.ThawDepthM = 0
		f.negativeDegreeDays = 0
		f.frostDays = 0
		for _, l := range column.Layers {
			l.Frozen = false
			l.LambdaRedux = 1
			l.HydraulicConductivityRedux = 1
		}
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// meanBulkDensityAndFieldCapacity returns the column-mean bulk density and field
// capacity, used by the Frost subcomponent's Stefan equation (§4.3).
func (c *SoilColumn) meanBulkDensityAndFieldCapacity() (bulkDensity, fieldCapacity float64) {
	if len(c.Layers) == 0 {
		return 1300, 0.3
	}
	var sumBD, sumFC float64
	for _, l := range c.Layers {
		sumBD += l.BulkDensity
		sumFC += l.Params.FieldCapacity
	}
	n := float64(len(c.Layers))
	return sumBD / n, sumFC / n
}
