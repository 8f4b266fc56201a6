package monica

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// textureCapillaryRiseRate is a small lookup table (m/d) of capillary rise rate by
// texture class and integer distance-to-water-table in decimeters, grounded on the
// shape of the original's capillary-rise lookup table (§4.3 step 6). Unlisted
// texture classes fall back to "loam".
var textureCapillaryRiseRate = map[string][]float64{
	"sand": {0.5, 0.2, 0.05, 0.01, 0.002},
	"loam": {0.8, 0.5, 0.3, 0.15, 0.05},
	"clay": {0.6, 0.45, 0.35, 0.25, 0.15},
}

func capillaryRiseRate(texture string, distanceDm int) float64 {
	table, ok := textureCapillaryRiseRate[texture]
	if !ok {
		table = textureCapillaryRiseRate["loam"]
	}
	if distanceDm < 0 {
		distanceDm = 0
	}
	if distanceDm >= len(table) {
		return 0
	}
	return table[distanceDm]
}

// SoilMoisture owns the Snow and Frost subcomponents and runs the main daily water
// budget (§4.3), grounded on original_source/src/core/soilmoisture.cpp.
type SoilMoisture struct {
	column *SoilColumn
	Snow   *Snow
	Frost  *Frost

	sink *DiagnosticsSink

	// last-day water balance terms, kept for the §8 water-balance invariant.
	LastRunoff, LastInfiltration, LastEvaporation, LastSnowStoreDelta float64
}

// NewSoilMoisture builds the module bound to a column.
func NewSoilMoisture(column *SoilColumn, sink *DiagnosticsSink) *SoilMoisture {
	return &SoilMoisture{column: column, Snow: NewSnow(), Frost: NewFrost(), sink: sink}
}

// Step runs the full daily water budget (§4.3 "Water budget (main routine)"):
// groundwater detection, snow, frost, infiltration, percolation, ET, capillary rise,
// in that fixed order, each consuming the moisture state left by the previous
// sub-step.
func (m *SoilMoisture) Step(day int, climate ClimateDay, site SiteParameters, crop *Crop, cropET0 float64) {
	column := m.column
	if len(column.Layers) == 0 {
		return
	}

	column.detectGroundwaterLayer(site.GroundwaterMinDepth, site.GroundwaterMaxDepth)

	swBefore := column.SurfaceWaterStorage
	snowBefore := m.Snow.DepthMM*m.Snow.DensityKgDm3

	snowRes := m.Snow.Step(climate.TMean, climate.Precipitation)
	m.Frost.Step(column, climate.TMean)

	waterToInfiltrate := snowRes.WaterToInfiltrate
	column.SurfaceWaterStorage += waterToInfiltrate

	infiltration, runoff := m.infiltrate(column)
	m.percolate(column, site)
	evaporatedFromSurface, evapPerLayer := m.evapotranspire(column, climate, site, crop, cropET0)
	m.capillaryRise(column, crop)

	swAfter := column.SurfaceWaterStorage
	snowAfter := m.Snow.DepthMM * m.Snow.DensityKgDm3
	m.LastRunoff = runoff
	m.LastInfiltration = infiltration
	m.LastEvaporation = evaporatedFromSurface + floats.Sum(evapPerLayer)
	m.LastSnowStoreDelta = snowAfter - snowBefore

	residual := swBefore + climate.Precipitation - (runoff + infiltration + evaporatedFromSurface + m.LastSnowStoreDelta) - swAfter
	if math.Abs(residual) > 0.01 {
		m.sink.Report(InvariantViolation, "SoilMoisture", day, -1,
			"water balance residual %.4g mm exceeds tolerance", residual)
	}

	leachLayer := column.LayerNumberForDepth(column.Env.LeachingDepth)
	if leachLayer < len(column.Layers) {
		column.FluxAtLowerBoundary = column.Layers[leachLayer].WaterFlux
	}
}

// infiltrate implements §4.3 step 3: potential infiltration from the Green-Ampt-like
// deficit-squared form, capped by available surface storage and by top-layer
// air-filled pore space. Of the ponded water above the roughness threshold
// (SurfaceRoughness×1000 mm), the fraction 0.1 + 0.9·min(10·SurfaceRoughness, 1)
// runs off, so the fraction grows with roughness; slope is not used.
func (m *SoilMoisture) infiltrate(column *SoilColumn) (infiltration, runoff float64) {
	top := column.Layers[0]
	deficit := 0.0
	if top.Params.Saturation > 0 {
		deficit = (top.Params.Saturation - top.Moisture) / top.Params.Saturation
	}
	if deficit < 0 {
		deficit = 0
	}
	potential := top.Params.SaturatedConductivityMMd * top.HydraulicConductivityRedux * 0.2 * deficit * deficit

	airFilledPoreMM := (top.Params.Saturation - top.Moisture) * top.Thickness * 1000
	if airFilledPoreMM < 0 {
		airFilledPoreMM = 0
	}

	infiltration = math.Min(column.SurfaceWaterStorage, math.Min(potential, airFilledPoreMM))
	if infiltration < 0 {
		infiltration = 0
	}
	column.SurfaceWaterStorage -= infiltration
	top.Moisture += infiltration / 1000 / top.Thickness
	top.WaterFlux = infiltration

	threshold := column.Env.SurfaceRoughness * 1000 // mm
	if column.SurfaceWaterStorage > threshold {
		excess := column.SurfaceWaterStorage - threshold
		slopeFactor := column.Env.SurfaceRoughness
		_ = slopeFactor
		runoff = excess * (0.1 + 0.9*minF(column.Env.SurfaceRoughness*10, 1))
		column.SurfaceWaterStorage -= runoff
	}
	return
}

// percolate implements §4.3 step 4, with and without a shallow groundwater table:
// gravitational water above field capacity moves down layer by layer at a rate
// g²·λ_redux/(1+λ_redux·g) capped at the configured maximum, backwater replenishes
// upward from a saturated layer, and at the groundwater layer surplus becomes
// `groundwater_added` for upward replenishment.
func (m *SoilMoisture) percolate(column *SoilColumn, site SiteParameters) {
	n := len(column.Layers)
	groundwaterAdded := 0.0
	for i := 0; i < n; i++ {
		l := column.Layers[i]
		gravWater := (l.Moisture - l.Params.FieldCapacity) * l.Thickness * 1000 // mm
		if gravWater <= 0 {
			l.WaterFlux = 0
			continue
		}
		g := gravWater
		rate := g * g * l.LambdaRedux / (1 + l.LambdaRedux*g)
		if rate > column.Env.MaxPercolationRateMM {
			rate = column.Env.MaxPercolationRateMM
		}
		if rate > gravWater {
			rate = gravWater
		}
		l.Moisture -= rate / 1000 / l.Thickness
		l.WaterFlux = rate

		if i == column.GroundwaterLayer {
			// Fix percolation to groundwater discharge; surplus becomes
			// groundwater_added for upward replenishment.
			discharge := rate
			groundwaterAdded += discharge
			continue
		}

		if i+1 < n {
			next := column.Layers[i+1]
			next.Moisture += rate / 1000 / next.Thickness
			if next.Moisture > next.Params.Saturation {
				excess := (next.Moisture - next.Params.Saturation) * next.Thickness * 1000
				next.Moisture = next.Params.Saturation
				l.Moisture += excess / 1000 / l.Thickness // backwater replenishment upward
			}
		}
	}

	if column.GroundwaterLayer >= 0 && groundwaterAdded > 0 {
		for i := column.GroundwaterLayer; i >= 0; i-- {
			l := column.Layers[i]
			room := (l.Params.Saturation - l.Moisture) * l.Thickness * 1000
			add := math.Min(room, groundwaterAdded)
			l.Moisture += add / 1000 / l.Thickness
			groundwaterAdded -= add
			if groundwaterAdded <= 0 {
				break
			}
		}
	}
}

// evapotranspire implements §4.3 step 5. Per §9's fixed ET precedence rule: if the
// climate record carries ET0, use it; else if a crop is present, use the crop's
// ET0; else compute Penman-Monteith FAO-56 here.
func (m *SoilMoisture) evapotranspire(column *SoilColumn, climate ClimateDay, site SiteParameters, crop *Crop, cropET0 float64) (fromSurface float64, perLayer []float64) {
	et0 := climate.ReferenceET0
	if et0 <= 0 && crop != nil && cropET0 > 0 {
		et0 = cropET0
	}
	if et0 <= 0 {
		et0 = penmanMonteithFAO56(climate, column.Env, site)
	}

	kc := 1.0
	if crop != nil {
		kc = crop.KcFactor()
	}
	potentialET := et0 * kc
	if potentialET > 6.5 {
		potentialET = 6.5
	}

	remaining := potentialET
	if column.SurfaceWaterStorage > 0 {
		openWaterKc := 1.1
		openWaterET := et0 * openWaterKc
		fromSurface = math.Min(column.SurfaceWaterStorage, openWaterET)
		column.SurfaceWaterStorage -= fromSurface
		remaining -= fromSurface
		if remaining < 0 {
			remaining = 0
		}
	}

	coverage := 0.0
	if crop != nil {
		coverage = crop.SoilCoverage()
	}

	perLayer = make([]float64, len(column.Layers))
	underSnow := m.Snow.DepthMM > 0

	var transpPerLayer []float64
	if crop != nil {
		transpPerLayer = crop.TranspirationDemand(column, remaining*coverage)
	}

	zeta := 3.0     // depth-decay shape
	maxImpactDepth := 0.4
	cum := 0.0
	for i, l := range column.Layers {
		depth := cum + l.Thickness/2
		cum += l.Thickness
		if underSnow {
			continue
		}
		r1 := evaporationMoistureReducer(l)
		r2 := math.Exp(-zeta * depth / maxImpactDepth)
		r3 := 1.0
		if i > 0 {
			prev := column.Layers[i-1]
			if prev.Moisture < l.Moisture {
				r3 = 0.5 // inversion penalty: top drier than the one below
			}
		}
		evap := remaining * (1 - coverage) * r1 * r2 * r3
		maxAvail := (l.Moisture - l.Params.PermanentWiltingPoint) * l.Thickness * 1000
		if maxAvail < 0 {
			maxAvail = 0
		}
		if evap > maxAvail {
			evap = maxAvail
		}
		if evap < 0 {
			evap = 0
		}
		l.Moisture -= evap / 1000 / l.Thickness
		perLayer[i] = evap

		if transpPerLayer != nil && i < len(transpPerLayer) {
			t := transpPerLayer[i]
			maxAvail2 := (l.Moisture - l.Params.PermanentWiltingPoint) * l.Thickness * 1000
			if t > maxAvail2 {
				t = maxAvail2
			}
			if t > 0 {
				l.Moisture -= t / 1000 / l.Thickness
			}
		}
	}
	return
}

// evaporationMoistureReducer is the HERMES-style piecewise-linear reducer R1 in
// relative evaporable water.
func evaporationMoistureReducer(l *SoilLayer) float64 {
	span := l.Params.FieldCapacity - l.Params.PermanentWiltingPoint
	if span <= 0 {
		return 0
	}
	rew := (l.Moisture - l.Params.PermanentWiltingPoint) / span
	if rew < 0 {
		return 0
	}
	if rew > 1 {
		return 1
	}
	if rew < 0.5 {
		return 2 * rew
	}
	return 1
}

// capillaryRise implements §4.3 step 6, grounded on
// original_source/src/core/soilmoisture.cpp's fm_CapillaryRise: the
// groundwater distance is the groundwater layer minus the crop's rooting
// depth (floored at 1), gated by distance·thickness ≤ 2.70 m. Starting at the
// groundwater layer and scanning upward, it skips layers already at or above
// 70% of capillary water, tracking the smallest lookup rate seen so far; the
// first layer found below that threshold receives the rise and the scan
// stops — capillary rise touches at most one layer per day.
func (m *SoilMoisture) capillaryRise(column *SoilColumn, crop *Crop) {
	gw := column.GroundwaterLayer
	if gw < 0 || gw >= len(column.Layers) {
		return
	}

	rootLayer := 0
	if crop != nil && crop.RootingDepthM > 0 {
		rootLayer = column.LayerNumberForDepth(crop.RootingDepthM)
	}
	groundwaterDistance := gw - rootLayer
	if groundwaterDistance < 1 {
		groundwaterDistance = 1
	}
	if float64(groundwaterDistance)*column.Env.LayerThickness > 2.70 {
		return
	}

	startLayer := gw
	if startLayer > len(column.Layers)-1 {
		startLayer = len(column.Layers) - 1
	}

	rate := 0.01 // m/d upper bound, matches the original's initial vm_CapillaryRiseRate
	for i := startLayer; i >= 0; i-- {
		l := column.Layers[i]
		capWater70 := 0.7 * (l.Params.FieldCapacity - l.Params.PermanentWiltingPoint)
		avail := l.Moisture - l.Params.PermanentWiltingPoint
		if avail < 0 {
			avail = 0
		}

		layerRate := capillaryRiseRate(l.Params.TextureClass, groundwaterDistance)
		if layerRate < rate {
			rate = layerRate
		}

		if avail < capWater70 {
			riseMM := rate * 1000 // m/d -> mm/d
			l.Moisture += riseMM / 1000 / l.Thickness
			if l.Moisture > l.Params.Saturation {
				l.Moisture = l.Params.Saturation
			}
			for j := startLayer; j >= i; j-- {
				column.Layers[j].WaterFlux -= riseMM
			}
			break
		}
	}
}

// penmanMonteithFAO56 computes reference evapotranspiration (mm/d) using the FAO-56
// Penman-Monteith combination equation, the fallback ET0 source per §9.
func penmanMonteithFAO56(c ClimateDay, env EnvironmentParameters, site SiteParameters) float64 {
	tmean := c.TMean
	delta := 4098 * (0.6108 * math.Exp(17.27*tmean/(tmean+237.3))) / math.Pow(tmean+237.3, 2)
	pressure := 101.3 * math.Pow((293-0.0065*site.HeightAboveSeaLevel)/293, 5.26)
	gamma := 0.000665 * pressure
	esTmax := 0.6108 * math.Exp(17.27*c.TMax/(c.TMax+237.3))
	esTmin := 0.6108 * math.Exp(17.27*c.TMin/(c.TMin+237.3))
	es := (esTmax + esTmin) / 2
	ea := es * c.RelativeHumidity
	u2 := c.WindSpeed * (4.87 / math.Log(67.8*env.WindSpeedHeight-5.42))
	rn := 0.77 * c.GlobalRadiation // net radiation approximation (albedo handled upstream)

	numerator := 0.408*delta*rn + gamma*(900/(tmean+273))*u2*(es-ea)
	denominator := delta + gamma*(1+0.34*u2)
	et0 := numerator / denominator
	if et0 < 0 {
		et0 = 0
	}
	return et0
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
