package monica

// SoilLayer is one depth slab of the column (default thickness 0.1 m), grounded on
// original_source/src/core/soilcolumn.h's SoilLayer. Static texture/hydraulic
// constants live in Params; everything else is daily-mutated state.
type SoilLayer struct {
	Params SoilLayerParameters

	Thickness float64 // m

	Moisture    float64 // θ, m3/m3
	Temperature float64 // °C
	Frozen      bool
	BulkDensity float64 // kg/m3, may diverge from Params.BulkDensity after tillage averaging

	// Mineral-N pools, kg N / m3 of layer.
	Carbamide float64
	NH4       float64
	NO2       float64
	NO3       float64

	// Organic-C pools, kg C / m3.
	SMBSlow float64
	SMBFast float64
	SOMSlow float64
	SOMFast float64

	AOMPools []*AOMPool

	// Frost-submodule per-layer reduction factors (§4.3 Frost subcomponent).
	LambdaRedux             float64 // heat-conductivity shape reduction, 1 = unreduced
	HydraulicConductivityRedux float64 // 1 = unreduced

	// WaterFlux is the water flux at the upper boundary of this layer for the
	// current day [mm], written by SoilMoisture and consumed by SoilTransport.
	WaterFlux float64

	// soilOrganicCarbonDensity is recomputed each SoilOrganic step from the C
	// pools and current bulk density (§4.4 "Pool update").
	soilOrganicCarbonDensity float64
}

// NewSoilLayer constructs a layer from static parameters and a thickness, seeding
// mineral-N pools from the parameters if given, else the original's small nonzero
// defaults (NH4 1e-4, NO2 1e-3, NO3 1e-4 kg N/m3) so early-day MIT immobilisation has
// something to draw from.
func NewSoilLayer(thickness float64, p SoilLayerParameters) *SoilLayer {
	l := &SoilLayer{
		Params:                     p,
		Thickness:                  thickness,
		Moisture:                   p.FieldCapacity,
		BulkDensity:                p.BulkDensity,
		NH4:                        0.0001,
		NO2:                        0.001,
		NO3:                        0.0001,
		LambdaRedux:                1,
		HydraulicConductivityRedux: 1,
	}
	if p.InitialNH4 > 0 {
		l.NH4 = p.InitialNH4
	}
	if p.InitialNO3 > 0 {
		l.NO3 = p.InitialNO3
	}
	// Split initial SOC into SOM pools: 2/3 slow, 1/3 fast is the conventional
	// MONICA cold-start partition (original_source's initial-condition setup).
	if p.InitialSOC > 0 && p.BulkDensity > 0 {
		socDensity := p.InitialSOC * p.BulkDensity // kg C/m3
		l.SOMSlow = socDensity * 2. / 3.
		l.SOMFast = socDensity * 1. / 3.
		l.soilOrganicCarbonDensity = socDensity
	}
	return l
}

// SoilOrganicMatterFraction returns the organic-matter content (kg OM/kg soil),
// conventionally 1.72x soil organic carbon by mass (Van Bemmelen factor).
func (l *SoilLayer) SoilOrganicMatterFraction() float64 {
	if l.BulkDensity <= 0 {
		return 0
	}
	return 1.72 * l.SoilOrganicCarbonFraction()
}

// SoilOrganicCarbonFraction returns kg C / kg soil from the current pool densities.
func (l *SoilLayer) SoilOrganicCarbonFraction() float64 {
	if l.BulkDensity <= 0 {
		return 0
	}
	return (l.SOMSlow + l.SOMFast + l.SMBSlow + l.SMBFast) / l.BulkDensity
}

// NMin returns the soil mineral-N content (NH4+NO2+NO3), kg N/m3.
func (l *SoilLayer) NMin() float64 {
	return l.NH4 + l.NO2 + l.NO3
}

// clampInvariants enforces the §8 quantified invariants on this layer: all pools
// ≥0, moisture within [0, θ_s+ε]. Violations are reported to the sink rather than
// causing a panic (§7 InvariantViolation).
func (l *SoilLayer) clampInvariants(sink *DiagnosticsSink, module string, day, index int) {
	const eps = 1e-6
	clamp := func(name string, v *float64) {
		if *v < 0 {
			sink.Report(InvariantViolation, module, day, index, "%s went negative (%.6g), clamped to 0", name, *v)
			*v = 0
		}
	}
	clamp("NH4", &l.NH4)
	clamp("NO2", &l.NO2)
	clamp("NO3", &l.NO3)
	clamp("Carbamide", &l.Carbamide)
	clamp("SMBSlow", &l.SMBSlow)
	clamp("SMBFast", &l.SMBFast)
	clamp("SOMSlow", &l.SOMSlow)
	clamp("SOMFast", &l.SOMFast)
	for _, p := range l.AOMPools {
		p.clampNonNegative()
	}
	if l.Moisture > l.Params.Saturation+eps {
		sink.Report(InvariantViolation, module, day, index, "moisture %.6g exceeds saturation %.6g", l.Moisture, l.Params.Saturation)
	}
	if l.Moisture < 0 {
		sink.Report(InvariantViolation, module, day, index, "moisture went negative (%.6g), clamped to 0", l.Moisture)
		l.Moisture = 0
	}
}
