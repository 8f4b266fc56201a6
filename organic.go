package monica

import "math"

// SoilOrganicSeasonTotals accumulates cropping-period mass flows (§4.8 supplemented
// cumulative accounting), reset by the simulation at sowing and readable at harvest.
type SoilOrganicSeasonTotals struct {
	NH3Volatilised   float64 // kg N/ha
	Denitrified      float64 // kg N/ha
	N2OProduced      float64 // kg N/ha
	MineralisedN     float64 // kg N/ha, net over the period
	CO2Evolved       float64 // kg C/ha
}

// SoilOrganic is the urea/mineralisation-immobilisation-turnover/nitrification/
// denitrification module (§4.4), grounded on
// original_source/src/core/soilorganic.cpp. It operates only on the organic layers
// (the top NumberOfOrganicLayers of the column) and mutates SoilColumn's pools
// through the column handle it is given each call, never owning them itself.
type SoilOrganic struct {
	SeasonTotals SoilOrganicSeasonTotals

	// Decomposition efficiencies and partition coefficients, MIT (§4.4).
	EtaSOMFast float64 // fraction of SOM_fast decay that feeds SMB, rest respires
	EtaSOMSlow float64
	EtaAOMSlowToSMBSlow float64
	EtaAOMSlowToSMBFast float64
	EtaAOMFast          float64
	PartSOMFastToSOMSlow float64
	PartSMBSlowToSOMFast float64
	PartSMBFastToSOMFast float64

	MaintenanceRespSMBSlow float64 // per-day fraction of SMB_slow respired for maintenance
	MaintenanceRespSMBFast float64

	KImmobNH4 float64 // per-day rate limit on NH4 immobilisation
	KImmobNO3 float64

	KAmmoxStandard float64 // nitrification NH4->NO2 rate coefficient
	KNitoxStandard float64 // nitrification NO2->NO3 rate coefficient

	SpecAnaerobDenitrification float64 // denitrification potential-rate coefficient
	TransportRateCoeffDenit    float64

	PKaHNO2 float64 // N2O pH-response pKa

	sink *DiagnosticsSink
}

// NewSoilOrganic returns a SoilOrganic module with the conventional MONICA
// coefficients (original_source/src/core/soilorganic.cpp defaults).
func NewSoilOrganic(sink *DiagnosticsSink) *SoilOrganic {
	return &SoilOrganic{
		EtaSOMFast:              0.5,
		EtaSOMSlow:              0.3,
		EtaAOMSlowToSMBSlow:     0.6,
		EtaAOMSlowToSMBFast:     0.4,
		EtaAOMFast:              0.1,
		PartSOMFastToSOMSlow:    0.3,
		PartSMBSlowToSOMFast:    0.4,
		PartSMBFastToSOMFast:    0.3,
		MaintenanceRespSMBSlow:  0.0008,
		MaintenanceRespSMBFast:  0.004,
		KImmobNH4:               0.6,
		KImmobNO3:               0.6,
		KAmmoxStandard:          0.1,
		KNitoxStandard:          0.2,
		SpecAnaerobDenitrification: 0.1,
		TransportRateCoeffDenit:    0.5,
		PKaHNO2:                 4.5,
		sink:                    sink,
	}
}

// AddOrganicMatter applies a fertiliser or crop-residue addition to the top layer's
// carbamide/NH4/NO3 and appends a new AOM-pool instance (visible, per §3's AOM
// lifecycle, to every organic layer, though only the top layer receives mass in this
// call) per §4.4 add_organic_matter.
func (so *SoilOrganic) AddOrganicMatter(column *SoilColumn, params OrganicFertiliserParameters, amountFreshMatterKgHa, nConcentrationOverride float64) {
	if len(column.Layers) == 0 || amountFreshMatterKgHa <= 0 {
		return
	}
	top := column.Layers[0]

	dryMatterKgHa := amountFreshMatterKgHa * params.DryMatterContent
	nConc := params.NConcentration
	if nConcentrationOverride > 0 {
		nConc = nConcentrationOverride
	}
	totalNKgHa := dryMatterKgHa * nConc
	nh4KgHa := dryMatterKgHa * params.NH4Content
	ureaKgHa := 0.0
	if params.NH4Content <= 0 {
		// Mineral fertiliser convention: everything not explicitly NH4 is applied
		// as urea-N, matching apply_organic_matter's "adds urea-N to top-layer
		// carbamide" description.
		ureaKgHa = totalNKgHa
	} else {
		ureaKgHa = totalNKgHa - nh4KgHa
		if ureaKgHa < 0 {
			ureaKgHa = 0
		}
	}
	no3KgHa := totalNKgHa - nh4KgHa - ureaKgHa
	if no3KgHa < 0 {
		no3KgHa = 0
	}

	perM3 := func(kgHa float64) float64 { return kgHa / 10000.0 / top.Thickness }
	top.Carbamide += perM3(ureaKgHa)
	top.NH4 += perM3(nh4KgHa)
	top.NO3 += perM3(no3KgHa)

	carbonKgHa := dryMatterKgHa * 0.45 // conventional 45% C content of dry matter
	if carbonKgHa <= 0 {
		return
	}

	cnFast := params.CNRatioAOMFast
	if cnFast <= 0 {
		// Plant residue: derive dynamically from available C and N, capped.
		if totalNKgHa > 0 {
			cnFast = carbonKgHa / totalNKgHa
		} else {
			cnFast = params.CNRatioAOMFastCap
		}
		if params.CNRatioAOMFastCap > 0 && cnFast > params.CNRatioAOMFastCap {
			cnFast = params.CNRatioAOMFastCap
		}
	}

	slowC := carbonKgHa * params.PartToSlow
	fastC := carbonKgHa * params.PartToFast
	somFastC := carbonKgHa - slowC - fastC
	if somFastC < 0 {
		somFastC = 0
	}

	pool := &AOMPool{
		ID:                   column.newAOMPoolID(),
		CSlow:                perM3(slowC),
		CFast:                perM3(fastC),
		SlowDecCoeffStandard: params.AOMSlowDecCoeffStd,
		FastDecCoeffStandard: params.AOMFastDecCoeffStd,
		PartSlowToSMBSlow:    params.PartAOMSlowToSMBSlow,
		PartSlowToSMBFast:    params.PartAOMSlowToSMBFast,
		CNRatioSlow:          params.CNRatioAOMSlow,
		CNRatioFast:          cnFast,
		DryMatterContent:     params.DryMatterContent,
		NH4Content:           params.NH4Content,
		DaysAfterApplication: 0,
		Incorporation:        true,
	}
	top.SOMFast += perM3(somFastC)
	top.AOMPools = append(top.AOMPools, pool)
	for i := 1; i < column.NumberOfOrganicLayers() && i < len(column.Layers); i++ {
		empty := *pool
		empty.CSlow, empty.CFast = 0, 0
		column.Layers[i].AOMPools = append(column.Layers[i].AOMPools, &empty)
	}
}

// tempFunction is the Ratkowsky-like piecewise decomposition-rate temperature
// modifier (§4.4 MIT: "standard coefficients scaled by temperature function
// (Ratkowsky-like piecewise up to 70 °C)").
func tempFunction(t float64) float64 {
	if t <= 0 {
		return 0.1
	}
	if t >= 70 {
		return 0
	}
	return math.Pow(t/40, 2) * (70 - t) / 70
}

// moistureFunction is the moisture modifier shared by urea hydrolysis and MIT
// decomposition rates (§4.4). It is piecewise in volumetric moisture relative to
// field capacity: 0.1 below 20% of field capacity, rising linearly to 1 at field
// capacity, then falling linearly to 0.5 at saturation. No pF is computed.
func moistureFunction(moisture, fieldCapacity, saturation float64) float64 {
	if fieldCapacity <= 0 {
		return 1
	}
	rel := moisture / fieldCapacity
	switch {
	case rel < 0.2:
		return 0.1
	case rel <= 1.0:
		return rel
	default:
		if saturation <= fieldCapacity {
			return 1
		}
		over := (moisture - fieldCapacity) / (saturation - fieldCapacity)
		return 1 - 0.5*over
	}
}

// topSoilAveragingDepth is the depth window original_source's
// get_AvgTopSoilTemperature defaults to (soiltemperature.h's commented
// sumUpLayerThickness = 0.3) for queries that want a top-soil rather than a
// single-layer temperature.
const topSoilAveragingDepth = 0.3

// Step runs, in order, urea hydrolysis, MIT, nitrification, denitrification, N2O
// production, and pool update across the organic layers (§4.4 step).
func (so *SoilOrganic) Step(column *SoilColumn, day int, precip, tmean, wind float64, temp *SoilTemperature) {
	nOrganic := column.NumberOfOrganicLayers()
	if nOrganic > len(column.Layers) {
		nOrganic = len(column.Layers)
	}

	var topSoilTemp float64
	if temp != nil {
		topSoilTemp = temp.AvgTopSoilTemperature(topSoilAveragingDepth)
	}

	for i := 0; i < nOrganic; i++ {
		l := column.Layers[i]
		fT := tempFunction(l.Temperature)
		fM := moistureFunction(l.Moisture, l.Params.FieldCapacity, l.Params.Saturation)

		if i == 0 {
			so.ureaHydrolysis(l, fM, topSoilTemp)
		}

		nBalance, co2 := so.mit(l, fT, fM, day, i)
		so.SeasonTotals.MineralisedN += nBalance * 10000 * l.Thickness
		so.SeasonTotals.CO2Evolved += co2 * 10000 * l.Thickness

		nh4ox := so.KAmmoxStandard * l.NH4 * fT * fM
		if nh4ox > l.NH4 {
			nh4ox = l.NH4
		}
		fNH3 := 1.0
		if l.Params.PH > 0 {
			fNH3 = 1 / (1 + math.Pow(2, l.Params.PH-8))
		}
		no2ox := so.KNitoxStandard * l.NO2 * fT * fM * fNH3
		if no2ox > l.NO2+nh4ox {
			no2ox = l.NO2 + nh4ox
		}
		l.NH4 -= nh4ox
		l.NO2 += nh4ox - no2ox
		l.NO3 += no2ox
		if l.NO2 < 0 {
			l.NO2 = 0
		}

		smbCO2Rate := co2
		potential := so.SpecAnaerobDenitrification * smbCO2Rate * fT
		actual := potential * fM
		transportLimited := so.TransportRateCoeffDenit * l.NO3
		if transportLimited < actual {
			actual = transportLimited
		}
		if actual > l.NO3 {
			actual = l.NO3
		}
		if actual < 0 {
			actual = 0
		}
		l.NO3 -= actual
		so.SeasonTotals.Denitrified += actual * 10000 * l.Thickness

		pHResponse := 1 / (1 + math.Pow(2, l.Params.PH-so.PKaHNO2))
		n2o := l.NO2 * fT * pHResponse * 0.01
		if n2o > l.NO2 {
			n2o = l.NO2
		}
		l.NO2 -= n2o
		so.SeasonTotals.N2OProduced += n2o * 10000 * l.Thickness

		l.soilOrganicCarbonDensity = l.SOMSlow + l.SOMFast + l.SMBSlow + l.SMBFast

		for _, p := range l.AOMPools {
			p.DaysAfterApplication++
		}
	}

	column.DeleteAOMPool()
}

// ureaHydrolysis converts the top layer's carbamide mass-conservatively to NH4,
// subtracting a volatilisation flux derived from the NH3 equilibrium (§4.4 urea
// hydrolysis). Its Arrhenius-style modifier runs on the top-soil average
// temperature rather than the top layer's own temperature (§4.8 supplemented
// wiring of SoilTemperature.AvgTopSoilTemperature).
func (so *SoilOrganic) ureaHydrolysis(l *SoilLayer, fM, topSoilTemp float64) {
	if l.Carbamide <= 0 {
		return
	}
	fT := tempFunction(topSoilTemp)
	pHModifier := math.Exp(-math.Pow(l.Params.PH-6.5, 2) / 2)
	const vmax = 0.3 // Michaelis-Menten max rate
	const km = 0.5    // half-saturation constant, kg N/m3
	rate := vmax * l.Carbamide / (km + l.Carbamide) * fT * fM * pHModifier
	hydrolysed := rate * l.Carbamide
	if hydrolysed > l.Carbamide {
		hydrolysed = l.Carbamide
	}
	l.Carbamide -= hydrolysed

	volatilisationFraction := 0.02
	volatilised := hydrolysed * volatilisationFraction
	if volatilised > hydrolysed {
		volatilised = hydrolysed
	}
	l.NH4 += hydrolysed - volatilised
	so.SeasonTotals.NH3Volatilised += volatilised * 10000 * l.Thickness
}

// mit runs one layer's mineralisation-immobilisation turnover for one day,
// returning the net mineral-N balance (positive = mineralisation, kg N/m3) and the
// CO2 evolved (kg C/m3), applying the retroactive-zeroing rule when available
// mineral N cannot cover a net-immobilisation balance (§4.4 MIT).
func (so *SoilOrganic) mit(l *SoilLayer, fT, fM float64, day, layerIndex int) (nBalance, co2 float64) {
	const smbCNThreshold = 8.0

	type flow struct {
		deltaC  float64
		cn      float64
		toSMB   bool     // true if this flow feeds an SMB pool (subject to retroactive zeroing)
		pool    *AOMPool // non-nil if zeroing this flow must also undo a pool's planned decay
		slowDec float64  // planned CSlow reduction on pool, applied only if the flow survives
		fastDec float64  // planned CFast reduction on pool, applied only if the flow survives
	}

	// compute derives this day's planned decomposition flows and the resulting
	// pool deltas without mutating layer or AOM-pool state; when zeroHighCN is
	// set, any SMB-bound flow whose C:N ratio exceeds smbCNThreshold is dropped
	// entirely (no carbon transfer, no pool decay) so that the returned deltas
	// and nBalance stay mutually consistent (§4.4 retroactive-zeroing rule).
	compute := func(zeroHighCN bool) (flows []flow, dSOMSlow, dSOMFast, dSMBSlow, dSMBFast, co2evolved float64) {
		drop := func(cn float64) bool { return zeroHighCN && cn > smbCNThreshold }

		somFastDecay := l.SOMFast * so.EtaSOMFast * fT * fM * 0.001
		if somFastDecay > l.SOMFast {
			somFastDecay = l.SOMFast
		}
		if cn := 10.0; !drop(cn) {
			toSOMSlow := somFastDecay * so.PartSOMFastToSOMSlow
			toSMBSlowFromSOMFast := somFastDecay * (1 - so.PartSOMFastToSOMSlow)
			dSOMFast -= somFastDecay
			dSOMSlow += toSOMSlow
			dSMBSlow += toSMBSlowFromSOMFast
			flows = append(flows, flow{deltaC: toSMBSlowFromSOMFast, cn: cn, toSMB: true})
		} else {
			flows = append(flows, flow{cn: cn, toSMB: true})
		}

		somSlowDecay := l.SOMSlow * so.EtaSOMSlow * fT * fM * 0.0005
		if somSlowDecay > l.SOMSlow {
			somSlowDecay = l.SOMSlow
		}
		if cn := 10.0; !drop(cn) {
			dSOMSlow -= somSlowDecay
			dSMBSlow += somSlowDecay
			flows = append(flows, flow{deltaC: somSlowDecay, cn: cn, toSMB: true})
		} else {
			flows = append(flows, flow{cn: cn, toSMB: true})
		}

		for _, p := range l.AOMPools {
			slowDecay := p.CSlow * p.SlowDecCoeffStandard * fT * fM
			if slowDecay > p.CSlow {
				slowDecay = p.CSlow
			}
			if !drop(p.CNRatioSlow) {
				toSMBSlow := slowDecay * p.PartSlowToSMBSlow
				toSMBFast := slowDecay * p.PartSlowToSMBFast
				dSMBSlow += toSMBSlow
				dSMBFast += toSMBFast
				flows = append(flows, flow{deltaC: toSMBSlow + toSMBFast, cn: p.CNRatioSlow, toSMB: true, pool: p, slowDec: slowDecay})
			} else {
				flows = append(flows, flow{cn: p.CNRatioSlow, toSMB: true, pool: p})
			}

			fastDecay := p.CFast * p.FastDecCoeffStandard * fT * fM
			if fastDecay > p.CFast {
				fastDecay = p.CFast
			}
			if !drop(p.CNRatioFast) {
				toSMBFromFast := fastDecay * so.EtaAOMFast
				dSMBFast += toSMBFromFast
				flows = append(flows, flow{deltaC: toSMBFromFast, cn: p.CNRatioFast, toSMB: true, pool: p, fastDec: fastDecay})
			} else {
				flows = append(flows, flow{cn: p.CNRatioFast, toSMB: true, pool: p})
			}
		}

		smbSlowMaint := l.SMBSlow * so.MaintenanceRespSMBSlow
		smbFastMaint := l.SMBFast * so.MaintenanceRespSMBFast
		dSMBSlow -= smbSlowMaint
		dSMBFast -= smbFastMaint
		toSOMFastFromSMB := (smbSlowMaint*so.PartSMBSlowToSOMFast + smbFastMaint*so.PartSMBFastToSOMFast)
		dSOMFast += toSOMFastFromSMB
		co2evolved += smbSlowMaint + smbFastMaint - toSOMFastFromSMB

		return
	}

	balanceOf := func(flows []flow) float64 {
		b := 0.0
		for _, f := range flows {
			if f.cn > 0 {
				b -= f.deltaC / f.cn
			}
		}
		return b
	}

	flows, dSOMSlow, dSOMFast, dSMBSlow, dSMBFast, co2evolved := compute(false)
	balance := balanceOf(flows)

	var fromNH4, fromNO3 float64
	if balance < 0 {
		demand := -balance
		fromNH4 = demand * so.KImmobNH4
		if fromNH4 > l.NH4 {
			fromNH4 = l.NH4
		}
		remaining := demand - fromNH4
		fromNO3 = remaining * so.KImmobNO3
		if fromNO3 > l.NO3 {
			fromNO3 = l.NO3
		}
		available := fromNH4 + fromNO3
		if available < demand {
			// Insufficient mineral N: retroactively zero every SMB-bound flow whose
			// C:N ratio exceeds a conservative SMB C:N threshold and recompute all
			// of the day's pool deltas and the N balance together, once.
			so.sink.Report(InvariantViolation, "SoilOrganic", day, layerIndex,
				"insufficient mineral N for immobilisation demand %.6g, zeroing high-C:N SMB flows", demand)
			flows, dSOMSlow, dSOMFast, dSMBSlow, dSMBFast, co2evolved = compute(true)
			balance = balanceOf(flows)
			if balance < 0 {
				demand = -balance
				fromNH4 = demand * so.KImmobNH4
				if fromNH4 > l.NH4 {
					fromNH4 = l.NH4
				}
				remaining = demand - fromNH4
				fromNO3 = remaining * so.KImmobNO3
				if fromNO3 > l.NO3 {
					fromNO3 = l.NO3
				}
			} else {
				fromNH4, fromNO3 = 0, 0
			}
		}
		l.NH4 -= fromNH4
		l.NO3 -= fromNO3
	} else if balance > 0 {
		l.NH4 += balance
	}

	// Commit the pool decay that actually survived zeroing (a dropped flow's
	// AOM pool is left untouched — its decay did not happen this day).
	for _, f := range flows {
		if f.pool == nil {
			continue
		}
		f.pool.CSlow -= f.slowDec
		f.pool.CFast -= f.fastDec
	}

	l.SOMSlow += dSOMSlow
	l.SOMFast += dSOMFast
	l.SMBSlow += dSMBSlow
	l.SMBFast += dSMBFast
	if l.SOMSlow < 0 {
		l.SOMSlow = 0
	}
	if l.SOMFast < 0 {
		l.SOMFast = 0
	}
	if l.SMBSlow < 0 {
		l.SMBSlow = 0
	}
	if l.SMBFast < 0 {
		l.SMBFast = 0
	}

	return balance, co2evolved
}
