package monica

import "math"

// radiationGeometry computes solar declination, day length (hours) and clear-sky
// global radiation (MJ/m2) for a given day-of-year and latitude (§4.6 "radiation
// geometry").
func radiationGeometry(dayOfYear int, latitudeDeg float64) (declinationRad, dayLengthHours, clearSkyRadiation float64) {
	declinationRad = 0.409 * math.Sin(2*math.Pi/365*float64(dayOfYear)-1.39)
	lat := latitudeDeg * math.Pi / 180
	sunsetAngle := math.Acos(clampUnit(-math.Tan(lat) * math.Tan(declinationRad)))
	dayLengthHours = 24 / math.Pi * sunsetAngle

	dr := 1 + 0.033*math.Cos(2*math.Pi/365*float64(dayOfYear))
	ra := 24 * 60 / math.Pi * 0.0820 * dr *
		(sunsetAngle*math.Sin(lat)*math.Sin(declinationRad) + math.Cos(lat)*math.Cos(declinationRad)*math.Sin(sunsetAngle))
	clearSkyRadiation = (0.75 + 2e-5*0) * ra
	return
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// vernalisationFactor returns a 0-1 multiplier on effective temperature-sum
// accumulation, reaching 1 once VernalisationRequirementDays of cold exposure have
// accumulated (§4.6 "vernalisation factors").
func (c *Crop) vernalisationFactor(tmean float64) float64 {
	if c.Params.VernalisationRequirementDays <= 0 {
		return 1
	}
	if tmean >= 0 && tmean <= 10 {
		c.VernalisationDays++
	}
	f := c.VernalisationDays / c.Params.VernalisationRequirementDays
	if f > 1 {
		f = 1
	}
	return f
}

// effectiveTemperature applies the base/optimum-temperature response used to
// accumulate stage temperature sums (§4.6: "accumulates effective temperature sum
// per stage with base/optimum temperatures").
func effectiveTemperature(tmean, base, optimum float64) float64 {
	if tmean <= base {
		return 0
	}
	if tmean >= optimum {
		return optimum - base
	}
	return tmean - base
}

// Step advances phenology, growth and mass balance for one day, in this fixed
// order: radiation geometry (its results are not used) → vernalisation → heat sum
// and stage update → rooting depth → LAI/coverage → photosynthesis → stress →
// partitioning → senescence → N-uptake demand for the next day → yield at the
// last stage. No Kc or crop-size step runs here and no transpiration is written
// back; SoilMoisture calls KcFactor and TranspirationDemand itself.
func (c *Crop) Step(climate ClimateDay, dayOfYear int, site SiteParameters, column *SoilColumn, temp *SoilTemperature) {
	if c.DyingOut {
		return
	}

	_, dayLength, clearSky := radiationGeometry(dayOfYear, site.LatitudeDeg)
	_ = dayLength
	_ = clearSky

	vern := c.vernalisationFactor(climate.TMean)

	stage := c.currentStage()
	effT := effectiveTemperature(climate.TMean, stage.BaseTemperature, stage.OptimumTemperature) * vern
	c.HeatSumSinceSowing += effT
	if c.StageIndex < len(c.StageTemperatureSums) {
		c.StageTemperatureSums[c.StageIndex] += effT
	}

	// Stage transition, guarded at emergence (stage 0) by a soil-moisture/flooding
	// window and by the top-soil temperature being above the stage's base
	// temperature (§4.8 supplemented emergence guard).
	if stage.TemperatureSum > 0 && c.StageIndex < len(c.StageTemperatureSums) &&
		c.StageTemperatureSums[c.StageIndex] >= stage.TemperatureSum {
		canAdvance := true
		if c.StageIndex == 0 {
			var topSoilTemp float64
			if temp != nil {
				topSoilTemp = temp.AvgTopSoilTemperature(topSoilAveragingDepth)
			}
			canAdvance = c.emergenceWindowOK(column, topSoilTemp, stage.BaseTemperature)
		}
		if canAdvance && c.StageIndex+1 < len(c.Params.Stages) {
			c.StageIndex++
		}
	}

	c.updateRootingDepth()
	c.updateLAIFromLeafBiomass()

	coverage := c.SoilCoverage()
	assimilation := c.grossAssimilation(climate.GlobalRadiation, coverage)

	heatStress := c.heatStressFactor(climate.TMax)
	frostKill := c.frostKillFactor(climate.TMin)
	droughtStress := c.droughtStressFactor(column)
	fertilityFactor := heatStress * frostKill * droughtStress

	if frostKill == 0 || (c.HeatSumSinceSowing > 0 && heatStress < 0.05) {
		c.DyingOut = true
	}

	netAssimilate := assimilation * fertilityFactor
	c.partition(netAssimilate, stage)
	c.senesce(stage)

	// Demand is stashed, not applied: SoilTransport applies it as a sink on the
	// following day's step, per the fixed daily ordering contract (§2).
	c.PendingNUptakeDemand = c.NUptakeDemand(column)

	if stage.Name == "maturity" || c.StageIndex == len(c.Params.Stages)-1 {
		c.Yield = c.OrganBiomass[OrganStorage]
	}
}

// emergenceWindowOK checks the top-soil moisture/flooding window and the
// top-soil average temperature gating emergence (§4.6: "guarded by
// soil-moisture/flooding windows at emergence"; §4.8 adds the temperature
// term from original_source's get_AvgTopSoilTemperature).
func (c *Crop) emergenceWindowOK(column *SoilColumn, topSoilTemp, stageBaseTemperature float64) bool {
	if len(column.Layers) == 0 {
		return true
	}
	if topSoilTemp < stageBaseTemperature {
		return false // too cold to emerge
	}
	top := column.Layers[0]
	if top.Moisture >= top.Params.Saturation-1e-6 {
		return false // flooded
	}
	if top.Moisture < top.Params.PermanentWiltingPoint {
		return false // too dry
	}
	return true
}

func (c *Crop) updateRootingDepth() {
	c.RootingDepthM += c.Params.RootPenetrationRate
	if c.RootingDepthM > c.Params.MaxRootingDepthM {
		c.RootingDepthM = c.Params.MaxRootingDepthM
	}
}

// grossAssimilation is a light-response (rectangular hyperbola in absorbed PAR)
// gross CO2 assimilation model under current AMAX, LAI and radiation (§4.6
// "photosynthesis (gross CO2 assimilation)").
func (c *Crop) grossAssimilation(globalRadiation, coverage float64) float64 {
	const parFraction = 0.5
	par := globalRadiation * parFraction
	absorbed := par * coverage
	amax := c.Params.AssimilationAMAX
	if amax <= 0 {
		return 0
	}
	const lightUseEfficiency = 0.5
	return amax * absorbed / (absorbed + amax/lightUseEfficiency)
}

func (c *Crop) heatStressFactor(tmax float64) float64 {
	if c.Params.HeatStressThreshold <= 0 || tmax < c.Params.HeatStressThreshold {
		return 1
	}
	excess := tmax - c.Params.HeatStressThreshold
	f := 1 - excess*0.1
	if f < 0 {
		return 0
	}
	return f
}

func (c *Crop) frostKillFactor(tmin float64) float64 {
	if tmin >= c.Params.FrostKillThreshold {
		return 1
	}
	return 0
}

// droughtStressFactor reduces fertility/assimilate production when the rooted
// profile is below 50% plant-available water (§4.6 "drought-stress on fertility").
func (c *Crop) droughtStressFactor(column *SoilColumn) float64 {
	frac := column.plantAvailableWaterFraction(c.RootingDepthM)
	if frac >= 0.5 {
		return 1
	}
	return frac / 0.5
}

// partition routes net assimilate into organs by the current stage's
// partitioning coefficients (§4.6 "dry-matter partitioning").
func (c *Crop) partition(netAssimilate float64, stage CropStage) {
	for o := Organ(0); o < numOrgans; o++ {
		c.OrganBiomass[o] += netAssimilate * stage.Partitioning[o]
	}
	totalN := 0.0
	for o := Organ(0); o < numOrgans; o++ {
		totalN += netAssimilate * stage.Partitioning[o] * stage.NConcentrationTarget
	}
	c.NContent += totalN
}

// senesce applies the stage's per-organ senescence rates (§4.6 "senescence and
// reallocation").
func (c *Crop) senesce(stage CropStage) {
	for o := Organ(0); o < numOrgans; o++ {
		loss := c.OrganBiomass[o] * stage.SenescenceRate[o]
		c.OrganBiomass[o] -= loss
		if c.OrganBiomass[o] < 0 {
			c.OrganBiomass[o] = 0
		}
	}
}

