package monica

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SoilTransportSeasonTotals accumulates cropping-period transport flows (§4.8
// supplemented cumulative accounting), reset by the simulation at sowing.
type SoilTransportSeasonTotals struct {
	LeachedKgNHa    float64
	DepositedKgNHa  float64
	UptakenKgNHa    float64
}

// SoilTransport is the vertical convection-dispersion module for nitrate (§4.5),
// grounded on original_source/src/core/soiltransport.cpp. Concentration and flux
// state for the current day is kept in gonum vectors, the way the teacher keeps
// per-cell chemical state in dense slices rather than per-layer scalars scattered
// across calls.
type SoilTransport struct {
	SeasonTotals SoilTransportSeasonTotals

	DispersionLength float64 // m, convection-dispersion length scale
	MolecularDiffusionCoeff float64 // m2/d

	LastLeachingKgNHa float64 // leaching at the configured leaching depth, this day

	sink *DiagnosticsSink
}

// NewSoilTransport returns a SoilTransport module with conventional defaults.
func NewSoilTransport(sink *DiagnosticsSink) *SoilTransport {
	return &SoilTransport{
		DispersionLength:        0.05,
		MolecularDiffusionCoeff: 0.0001,
		sink:                    sink,
	}
}

// Step runs atmospheric N deposition, CFL-safe convection-dispersion of NO3, and
// crop N-uptake sink application, in that order (§4.5 step).
func (t *SoilTransport) Step(day int, column *SoilColumn, site SiteParameters, growingSeason bool, cropUptakePerLayer []float64) {
	n := len(column.Layers)
	if n == 0 {
		return
	}

	if growingSeason {
		t.deposit(column, site)
	}

	t.convectDisperse(column)

	var uptake float64
	if cropUptakePerLayer != nil {
		uptake = t.applyUptakeSink(column, cropUptakePerLayer)
	}
	column.DailyCropNUptake = uptake

	leachLayer := column.LayerNumberForDepth(column.Env.LeachingDepth)
	if leachLayer < n {
		leachMM := column.Layers[leachLayer].WaterFlux
		if leachMM > 0 {
			conc := column.Layers[leachLayer].NO3 // kg N/m3
			leached := conc * leachMM / 1000 * 10000
			if leached < 0 {
				leached = 0
			}
			t.LastLeachingKgNHa = leached
			t.SeasonTotals.LeachedKgNHa += leached
		} else {
			t.LastLeachingKgNHa = 0
		}
	}
}

// deposit adds atmospheric N deposition pro-rata across the growing season to the
// top layer's NO3 pool (§4.5 step a).
func (t *SoilTransport) deposit(column *SoilColumn, site SiteParameters) {
	if len(column.Layers) == 0 {
		return
	}
	top := column.Layers[0]
	const growingSeasonDays = 200.0
	dailyKgHa := site.NDepositionKgHaYr / growingSeasonDays
	if dailyKgHa <= 0 {
		return
	}
	top.NO3 += dailyKgHa / 10000.0 / top.Thickness
	t.SeasonTotals.DepositedKgNHa += dailyKgHa
}

// convectDisperse integrates NO3 transport over one day using a CFL-safe internal
// timestep, explicit in the convective (pore-water velocity x gradient) and
// dispersive (dispersion-coefficient x second-difference) terms (§4.5 algorithm).
// Per-layer concentration and flux state is held in gonum vectors for the duration
// of the sub-daily loop.
func (t *SoilTransport) convectDisperse(column *SoilColumn) {
	n := len(column.Layers)
	conc := mat.NewVecDense(n, nil)
	thickness := mat.NewVecDense(n, nil)
	velocity := mat.NewVecDense(n, nil)
	moisture := mat.NewVecDense(n, nil)

	for i, l := range column.Layers {
		conc.SetVec(i, l.NO3)
		thickness.SetVec(i, l.Thickness)
		moisture.SetVec(i, math.Max(l.Moisture, 1e-6))
		velocity.SetVec(i, l.WaterFlux/1000/math.Max(l.Moisture, 1e-6)) // m/d
	}

	maxVel := 0.0
	minThickness := math.Inf(1)
	for i := 0; i < n; i++ {
		v := math.Abs(velocity.AtVec(i))
		if v > maxVel {
			maxVel = v
		}
		if thickness.AtVec(i) < minThickness {
			minThickness = thickness.AtVec(i)
		}
	}

	dispersionCoeff := t.DispersionLength*maxVel + t.MolecularDiffusionCoeff

	dtCFL := 1.0
	if maxVel > 0 {
		dtCFL = 0.5 * minThickness / maxVel
	}
	if dispersionCoeff > 0 {
		dtDiff := 0.5 * minThickness * minThickness / dispersionCoeff
		if dtDiff < dtCFL {
			dtCFL = dtDiff
		}
	}
	if dtCFL > 1.0 {
		dtCFL = 1.0
	}
	if dtCFL <= 0 {
		dtCFL = 1.0 / 48 // half-hour floor, avoids a zero/negative step from degenerate input
	}

	steps := int(math.Ceil(1.0 / dtCFL))
	if steps < 1 {
		steps = 1
	}
	dt := 1.0 / float64(steps)

	next := mat.NewVecDense(n, nil)
	for s := 0; s < steps; s++ {
		for i := 0; i < n; i++ {
			thi := thickness.AtVec(i)
			ci := conc.AtVec(i)

			convective := 0.0
			vi := velocity.AtVec(i)
			if vi > 0 && i > 0 {
				convective = -vi * (ci - conc.AtVec(i-1)) / thi
			} else if vi < 0 && i+1 < n {
				convective = -vi * (conc.AtVec(i+1) - ci) / thi
			}

			dispersive := 0.0
			if i > 0 && i+1 < n {
				dispersive = dispersionCoeff * (conc.AtVec(i+1) - 2*ci + conc.AtVec(i-1)) / (thi * thi)
			}

			updated := ci + dt*(convective+dispersive)
			if updated < 0 {
				updated = 0
			}
			next.SetVec(i, updated)
		}
		conc.CopyVec(next)
	}

	for i, l := range column.Layers {
		l.NO3 = conc.AtVec(i)
	}
}

// applyUptakeSink subtracts the crop's per-layer N demand from each layer's NO3
// pool, clamped to availability, accumulates the seasonal uptake total, and
// returns the total uptake (kg N/ha) so the caller can credit it to the crop's
// tissue N content (§4.5 step c).
func (t *SoilTransport) applyUptakeSink(column *SoilColumn, demandKgNHaPerLayer []float64) float64 {
	total := 0.0
	for i, demand := range demandKgNHaPerLayer {
		if i >= len(column.Layers) || demand <= 0 {
			continue
		}
		l := column.Layers[i]
		availableKgNHa := l.NO3 * l.Thickness * 10000
		uptake := math.Min(demand, availableKgNHa)
		if uptake <= 0 {
			continue
		}
		l.NO3 -= uptake / l.Thickness / 10000
		total += uptake
	}
	t.SeasonTotals.UptakenKgNHa += total
	return total
}
