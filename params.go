package monica

// Value-typed parameter blocks, per §9's redesign note: these are constructed once at
// simulation start and passed by immutable reference to modules. They never change
// during a run, except CropParameters which is swapped wholesale when a new Crop is
// sown (a new instance is built, the old one discarded, per §3 Crop lifecycle).

// SiteParameters are the fixed, whole-column site properties of §6.
type SiteParameters struct {
	LatitudeDeg         float64
	SlopePercent        float64
	HeightAboveSeaLevel float64
	SoilCN              float64
	NDepositionKgHaYr   float64
	GroundwaterMinDepth float64 // m
	GroundwaterMaxDepth float64 // m
	GroundwaterMinMonth int     // 1-12
}

// EnvironmentParameters are the whole-run configuration constants of §6.
type EnvironmentParameters struct {
	LayerThickness          float64 // m, default 0.1
	NumberOfLayers          int
	LeachingDepth           float64 // m
	Albedo                  float64
	AtmosphericCO2          float64 // ppm, used when no year-indexed curve is supplied
	WindSpeedHeight         float64 // m
	TimeStepDays            float64 // fixed at 1 for the core
	MaxMineralisationDepth  float64 // m, default 0.4
	CriticalMoistureDepth   float64 // m
	MaxPercolationRateMM    float64 // mm/d
	SurfaceRoughness        float64
	HydraulicConductivityRedux float64 // [0,1] multiplier applied when frozen
}

// DefaultEnvironmentParameters returns the defaults named in §3/§6.
func DefaultEnvironmentParameters() EnvironmentParameters {
	return EnvironmentParameters{
		LayerThickness:             0.1,
		NumberOfLayers:             20,
		LeachingDepth:              1.0,
		Albedo:                     0.23,
		AtmosphericCO2:             380,
		WindSpeedHeight:            2.0,
		TimeStepDays:               1.0,
		MaxMineralisationDepth:     0.4,
		CriticalMoistureDepth:      0.3,
		MaxPercolationRateMM:       15,
		SurfaceRoughness:           0.02,
		HydraulicConductivityRedux: 1.0,
	}
}

// SoilLayerParameters are the static, per-layer soil properties of §3.
type SoilLayerParameters struct {
	Sand, Clay, Stone   float64 // kg/kg
	TextureClass        string
	PH                  float64
	Lambda              float64 // conductivity shape
	SaturatedConductivityMMd float64
	FieldCapacity       float64 // θ_fc m3/m3
	Saturation          float64 // θ_s m3/m3
	PermanentWiltingPoint float64 // θ_pwp m3/m3
	BulkDensity         float64 // kg/m3
	InitialSOC          float64 // kg C/kg soil, fraction (not percent; see DESIGN.md open-question note)
	InitialNH4          float64 // kg N/m3, optional
	InitialNO3          float64 // kg N/m3, optional
}

// Silt returns the derived silt fraction.
func (p SoilLayerParameters) Silt() float64 {
	s := 1 - p.Sand - p.Clay - p.Stone
	if s < 0 {
		return 0
	}
	return s
}

// MineralFertiliserParameters describe a mineral fertiliser's N-form partition
// (§6 fertiliser catalogue, mineral entries).
type MineralFertiliserParameters struct {
	Name              string
	NH4Fraction       float64
	NO3Fraction       float64
	CarbamideFraction float64
}

// OrganicFertiliserParameters describe an organic fertiliser's AOM initialisation
// (§6 fertiliser catalogue, organic entries; §4.4 AddOrganicMatter).
type OrganicFertiliserParameters struct {
	Name                string
	AOMSlowDecCoeffStd  float64
	AOMFastDecCoeffStd  float64
	PartAOMSlowToSMBSlow float64
	PartAOMSlowToSMBFast float64
	CNRatioAOMSlow      float64
	CNRatioAOMFast      float64 // 0 means "derive dynamically" (plant residue, §4.4)
	CNRatioAOMFastCap   float64 // upper cap used when deriving dynamically
	DryMatterContent    float64 // kg DM / kg fresh matter
	NH4Content          float64 // kg NH4-N / kg dry matter
	NConcentration      float64 // kg N / kg dry matter, overall
	PartToSlow          float64 // fraction of added C routed to AOM_slow
	PartToFast          float64 // fraction of added C routed to AOM_fast (remainder -> SOM_fast)
}

// NMinFertiliserParameters are the parameters of an N-min-triggered fertiliser call
// (§4.1 ApplyMineralFertiliserViaNMin).
type NMinFertiliserParameters struct {
	Partition         MineralFertiliserParameters
	SamplingDepth     float64 // m
	NTarget           float64 // kg N/ha over SamplingDepth
	NTarget30cm       float64 // kg N/ha over 0.3 m
	MinApplication    float64 // kg N/ha
	MaxApplication    float64 // kg N/ha
	TopDressingDelay  int     // days
}
