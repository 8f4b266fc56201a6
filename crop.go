package monica

import "math"

// Organ identifies a crop organ for partitioning, cutting and harvest operations
// (§3 Crop daily state: "organ biomasses").
type Organ int

const (
	OrganRoot Organ = iota
	OrganLeaf
	OrganShoot
	OrganStorage
	numOrgans
)

// CropStage describes one developmental stage's thresholds and coefficients (§3
// Crop species/cultivar parameter block), grounded on
// original_source/src/crop.h's per-stage parameter vectors.
type CropStage struct {
	Name               string
	TemperatureSum     float64 // °C*d required to complete this stage
	BaseTemperature    float64
	OptimumTemperature float64
	KcFactor           float64
	Partitioning       [numOrgans]float64 // fraction of assimilate to each organ, sums to 1
	SenescenceRate     [numOrgans]float64 // fraction of organ biomass lost per day
	NConcentrationTarget float64          // kg N / kg DM target for this stage
}

// CropParameters are the species/cultivar parameters of §3, value-typed and built
// once at sowing (§9: "crop parameters change only at sowing, i.e. a new crop
// instance is built").
type CropParameters struct {
	Name    string
	Stages  []CropStage

	SpecificLeafArea float64 // m2 leaf / kg leaf DM
	AssimilationAMAX float64 // kg CO2/ha/h at light saturation

	MaxRootingDepthM float64
	RootPenetrationRate float64 // m/d

	FrostKillThreshold float64 // °C, sustained cold below this kills the crop
	HeatStressThreshold float64 // °C

	IrrigationStartHeatSum float64
	IrrigationEndHeatSum   float64

	VernalisationRequirementDays float64
}

// Crop is one planted instance: species/cultivar parameters plus daily state
// (§3). It is created at sowing, exclusively owned by the simulation for the
// cropping period, and destroyed at harvest.
type Crop struct {
	Params CropParameters

	StageIndex int
	StageTemperatureSums []float64
	VernalisationDays    float64
	HeatSumSinceSowing   float64

	LAI float64
	OrganBiomass [numOrgans]float64 // kg DM/m2
	ExportedBiomass [numOrgans]float64

	RootingDepthM float64
	NContent      float64 // kg N/m2, whole plant
	AccumulatedET float64
	AccumulatedTranspiration float64
	Yield float64

	// PendingNUptakeDemand is last-computed per-layer N demand (kg N/ha), applied
	// by SoilTransport as a sink on the following day's step (§4.6, §4.5).
	PendingNUptakeDemand []float64

	DyingOut bool

	sink *DiagnosticsSink
}

// NewCrop creates a crop instance at sowing (§3 Crop lifecycle).
func NewCrop(params CropParameters, sink *DiagnosticsSink) *Crop {
	return &Crop{
		Params:               params,
		StageTemperatureSums: make([]float64, len(params.Stages)),
		RootingDepthM:        0.05,
		sink:                 sink,
	}
}

// currentStage returns the active CropStage, clamped to the valid range.
func (c *Crop) currentStage() CropStage {
	if len(c.Params.Stages) == 0 {
		return CropStage{}
	}
	i := c.StageIndex
	if i < 0 {
		i = 0
	}
	if i >= len(c.Params.Stages) {
		i = len(c.Params.Stages) - 1
	}
	return c.Params.Stages[i]
}

// KcFactor interpolates between stage Kc values by progress within the current
// stage (§4.6: "Kc factor interpolated between stage Kc values").
func (c *Crop) KcFactor() float64 {
	stage := c.currentStage()
	if c.StageIndex+1 >= len(c.Params.Stages) {
		return stage.KcFactor
	}
	next := c.Params.Stages[c.StageIndex+1]
	progress := 0.0
	if stage.TemperatureSum > 0 {
		progress = c.StageTemperatureSums[c.StageIndex] / stage.TemperatureSum
	}
	if progress > 1 {
		progress = 1
	}
	return stage.KcFactor + (next.KcFactor-stage.KcFactor)*progress
}

// SoilCoverage derives ground cover fraction from LAI via a Beer's-law-style
// extinction relationship (§4.6 "soil coverage from LAI").
func (c *Crop) SoilCoverage() float64 {
	const k = 0.6 // light extinction coefficient
	return 1 - math.Exp(-k*c.LAI)
}

// withinIrrigationWindow reports whether the crop's accumulated heat sum lies
// between its configured irrigation-start and irrigation-end thresholds (§4.1
// ApplyIrrigationViaTrigger).
func (c *Crop) withinIrrigationWindow() bool {
	return c.HeatSumSinceSowing >= c.Params.IrrigationStartHeatSum &&
		c.HeatSumSinceSowing <= c.Params.IrrigationEndHeatSum
}

// TranspirationDemand distributes potential transpiration (mm) across layers in
// proportion to root presence, limited to the rooting depth (§4.6: "per-layer
// transpiration (written into SoilMoisture's interface)").
func (c *Crop) TranspirationDemand(column *SoilColumn, potentialMM float64) []float64 {
	out := make([]float64, len(column.Layers))
	if potentialMM <= 0 || c.RootingDepthM <= 0 {
		return out
	}
	rootLayer := column.LayerNumberForDepth(c.RootingDepthM)
	var weights []float64
	total := 0.0
	cum := 0.0
	for i, l := range column.Layers {
		if i > rootLayer {
			break
		}
		remaining := c.RootingDepthM - cum
		w := l.Thickness
		if remaining < w {
			w = remaining
		}
		if w < 0 {
			w = 0
		}
		weights = append(weights, w)
		total += w
		cum += l.Thickness
	}
	c.AccumulatedTranspiration += potentialMM
	c.AccumulatedET += potentialMM
	if total <= 0 {
		return out
	}
	for i, w := range weights {
		out[i] = potentialMM * w / total
	}
	return out
}

// NUptakeDemand returns the crop's per-layer nitrogen-uptake demand (kg N/ha),
// consumed by SoilTransport as a layer-wise sink (§4.6, §4.5). Demand is
// proportional to root presence and scaled by the gap between the stage's target
// N concentration and current tissue N concentration.
func (c *Crop) NUptakeDemand(column *SoilColumn) []float64 {
	out := make([]float64, len(column.Layers))
	stage := c.currentStage()
	totalBiomass := 0.0
	for _, b := range c.OrganBiomass {
		totalBiomass += b
	}
	if totalBiomass <= 0 {
		return out
	}
	currentConc := c.NContent / totalBiomass
	gap := stage.NConcentrationTarget - currentConc
	if gap <= 0 {
		return out
	}
	demandTotal := gap * totalBiomass * 10000 // kg N/ha equivalent over 1 m2 scaled to ha
	rootLayer := column.LayerNumberForDepth(c.RootingDepthM)
	var weights []float64
	total := 0.0
	for i := range column.Layers {
		if i > rootLayer {
			weights = append(weights, 0)
			continue
		}
		w := 1.0 / float64(i+1) // shallower layers weighted higher, as in the original's root-density decay
		weights = append(weights, w)
		total += w
	}
	if total <= 0 {
		return out
	}
	for i, w := range weights {
		out[i] = demandTotal * w / total
	}
	return out
}

// ApplyCutting removes biomass from the given organs, routes `exportFraction` of
// the removed mass to cumulative exports, leaves the rest as residue for the
// caller to pass to SoilOrganic.AddOrganicMatter, and returns the residue biomass
// per organ (§4.6 apply_cutting; §8 scenario 6).
func (c *Crop) ApplyCutting(organs []Organ, cutFraction, exportFraction float64) (residue [numOrgans]float64) {
	for _, o := range organs {
		removed := c.OrganBiomass[o] * cutFraction
		c.OrganBiomass[o] -= removed
		exported := removed * exportFraction
		c.ExportedBiomass[o] += exported
		residue[o] = removed - exported
	}
	c.updateLAIFromLeafBiomass()
	return residue
}

// ApplyFruitHarvest removes `percentage` of the storage organ's biomass as yield
// and returns the removed biomass (§4.6 apply_fruit_harvest). All removed biomass
// goes to yield and none is left as residue, so the second result is always 0.
func (c *Crop) ApplyFruitHarvest(percentage float64) (removed, residue float64) {
	removed = c.OrganBiomass[OrganStorage] * percentage
	c.OrganBiomass[OrganStorage] -= removed
	c.Yield += removed
	return removed, 0
}

// updateLAIFromLeafBiomass keeps LAI proportional to remaining leaf biomass via
// specific leaf area (§8 scenario 6: "LAI proportional to remaining leaf biomass").
func (c *Crop) updateLAIFromLeafBiomass() {
	c.LAI = c.OrganBiomass[OrganLeaf] * c.Params.SpecificLeafArea
}

// IncorporateCurrentCrop computes the residue biomass and its N concentration for
// routing to SoilOrganic.AddOrganicMatter on harvest (§4.6 incorporate_current_crop).
func (c *Crop) IncorporateCurrentCrop() (residueDryMatterKgM2, nConcentration float64) {
	for o := Organ(0); o < numOrgans; o++ {
		if o == OrganStorage {
			continue // storage organ is harvested, not incorporated
		}
		residueDryMatterKgM2 += c.OrganBiomass[o]
	}
	totalBiomass := residueDryMatterKgM2 + c.OrganBiomass[OrganStorage]
	if totalBiomass > 0 {
		nConcentration = c.NContent / totalBiomass
	}
	return
}
