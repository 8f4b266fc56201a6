package monica

import "sort"

// deferredNMinCall is a tagged record `{Action, Args}` per §9's redesign note for
// "deferred-application thunks": the original captures the N-min fertiliser call and
// its arguments in a closure; here it is plain data re-dispatched by the queue
// drainer, so no closure ever captures the column.
type deferredNMinCall struct {
	Params NMinFertiliserParameters
}

// topDressingRecord is the "amount above max" stashed by ApplyMineralFertiliserViaNMin
// until its delay counter reaches zero (§4.1).
type topDressingRecord struct {
	Partition MineralFertiliserParameters
	Amount    float64 // kg N/ha
	Delay     int
}

// SoilColumn is the ordered sequence of layers shared by every process module (§3).
// It exclusively owns its layers, their pools, and the AOM pools within them.
type SoilColumn struct {
	Layers []*SoilLayer

	Env EnvironmentParameters

	// Surface scalars (§3).
	SurfaceWaterStorage float64 // mm
	SnowDepth           float64 // mm
	InterceptionStorage float64 // mm
	GroundwaterLayer    int     // index, -1 if below the column
	FluxAtLowerBoundary float64 // mm
	DailyCropNUptake    float64 // kg N/ha

	deferredNMin  []deferredNMinCall
	topDressing   topDressingRecord
	nextAOMPoolID int

	sink *DiagnosticsSink
}

// NewSoilColumn builds a column of uniform-thickness layers from per-layer
// parameters, per §6 ("Environment parameters: layer thickness, number of layers").
func NewSoilColumn(env EnvironmentParameters, layerParams []SoilLayerParameters, sink *DiagnosticsSink) *SoilColumn {
	c := &SoilColumn{
		Env:              env,
		GroundwaterLayer: -1,
		sink:             sink,
	}
	for _, p := range layerParams {
		if p.Sand+p.Clay+p.Stone > 1.0 {
			sink.Report(ConfigurationError, "SoilColumn", 0, -1,
				"sand+clay+stone = %.4g exceeds 1.0, layer skipped", p.Sand+p.Clay+p.Stone)
			continue
		}
		c.Layers = append(c.Layers, NewSoilLayer(env.LayerThickness, p))
	}
	return c
}

// NumberOfLayers returns the layer count.
func (c *SoilColumn) NumberOfLayers() int { return len(c.Layers) }

// NumberOfOrganicLayers returns the least count n such that the cumulative
// thickness of layers 0..n-1 covers Env.MaxMineralisationDepth, or the number of
// layers if the column is shallower (§3 "Derived").
func (c *SoilColumn) NumberOfOrganicLayers() int {
	cum := 0.0
	for i, l := range c.Layers {
		cum += l.Thickness
		if cum >= c.Env.MaxMineralisationDepth {
			return i + 1
		}
	}
	return len(c.Layers)
}

// LayerNumberForDepth returns the index of the first layer whose cumulative
// thickness is ≥ depth (§4.1).
func (c *SoilColumn) LayerNumberForDepth(depth float64) int {
	cum := 0.0
	for i, l := range c.Layers {
		cum += l.Thickness
		if cum >= depth {
			return i
		}
	}
	if len(c.Layers) == 0 {
		return 0
	}
	return len(c.Layers) - 1
}

// depthOfLayerBottom returns the cumulative depth at the bottom of layer i.
func (c *SoilColumn) depthOfLayerBottom(i int) float64 {
	cum := 0.0
	for j := 0; j <= i && j < len(c.Layers); j++ {
		cum += c.Layers[j].Thickness
	}
	return cum
}

// ApplyMineralFertiliser splits amount (kg N/ha) by partition fractions into NH4,
// NO3 and carbamide of the top layer (§4.1). Conversion from kg N/ha to kg N/m3
// follows the column convention: ×1/10000 per m2, divided by the top layer's
// thickness in m, i.e. × (1/10000) / thickness.
func (c *SoilColumn) ApplyMineralFertiliser(partition MineralFertiliserParameters, amountKgNHa float64) {
	if amountKgNHa <= 0 || len(c.Layers) == 0 {
		return
	}
	top := c.Layers[0]
	perM3 := amountKgNHa / 10000.0 / top.Thickness
	top.NH4 += perM3 * partition.NH4Fraction
	top.NO3 += perM3 * partition.NO3Fraction
	top.Carbamide += perM3 * partition.CarbamideFraction
}

// sumMineralNOverDepth sums NH4+NO3 across the layers whose cumulative thickness
// reaches `depth`, pro-rating the final partial layer by the fraction of it that
// lies within depth — consistent with how the original samples soil for N-min.
func (c *SoilColumn) sumMineralNOverDepth(depth float64) float64 {
	sum := 0.0
	cum := 0.0
	for _, l := range c.Layers {
		remaining := depth - cum
		if remaining <= 0 {
			break
		}
		frac := 1.0
		if remaining < l.Thickness {
			frac = remaining / l.Thickness
		}
		// kg N/m3 * thickness(m) * frac * 10000 m2/ha = kg N/ha contributed by this layer
		sum += (l.NH4 + l.NO3) * l.Thickness * frac * 10000.0
		cum += l.Thickness
	}
	return sum
}

// ApplyMineralFertiliserViaNMin implements the N-min triggered application rule of
// §4.1: if the top layer is wetter than field capacity, the whole call is requeued
// for the next day and 0 is returned; otherwise demand is computed from the larger
// of the sampling-depth and 30cm shortfalls, clamped to [min,max], any amount above
// max is stored as a delayed top-dressing, and the remainder is applied immediately.
// The return value is the total amount accounted for (applied now + scheduled).
func (c *SoilColumn) ApplyMineralFertiliserViaNMin(p NMinFertiliserParameters) float64 {
	if len(c.Layers) == 0 {
		return 0
	}
	if c.Layers[0].Moisture > c.Layers[0].Params.FieldCapacity {
		c.deferredNMin = append(c.deferredNMin, deferredNMinCall{Params: p})
		c.sink.Report(TransientManagementCondition, "SoilColumn", 0, 0,
			"N-min fertilisation deferred: top layer moisture above field capacity")
		return 0
	}

	haveSampling := c.sumMineralNOverDepth(p.SamplingDepth)
	have30 := c.sumMineralNOverDepth(0.3)

	demandSampling := p.NTarget - haveSampling
	demand30 := p.NTarget30cm - have30
	demand := demandSampling
	if demand30 > demand {
		demand = demand30
	}
	if demand < p.MinApplication {
		demand = p.MinApplication
	}
	total := demand
	toApplyNow := demand
	if toApplyNow > p.MaxApplication {
		overflow := toApplyNow - p.MaxApplication
		toApplyNow = p.MaxApplication
		c.topDressing = topDressingRecord{
			Partition: p.Partition,
			Amount:    c.topDressing.Amount + overflow,
			Delay:     p.TopDressingDelay,
		}
	}
	if toApplyNow > 0 {
		c.ApplyMineralFertiliser(p.Partition, toApplyNow)
	}
	return total
}

// ApplyPossibleTopDressing decrements the delay counter; when it reaches zero and
// the stored top-dressing is positive, applies it and clears the store (§4.1).
// Two consecutive calls with delay=0 and stored=0 are no-ops (§8 round-trip property).
func (c *SoilColumn) ApplyPossibleTopDressing() {
	if c.topDressing.Amount <= 0 {
		return
	}
	if c.topDressing.Delay > 0 {
		c.topDressing.Delay--
		return
	}
	c.ApplyMineralFertiliser(c.topDressing.Partition, c.topDressing.Amount)
	c.topDressing = topDressingRecord{}
}

// ApplyPossibleDelayedFertiliser executes every deferred N-min call once, draining
// the queue for the day (§4.1). Each call may itself re-enqueue (still too wet),
// so the queue is swapped out before iterating to avoid an infinite loop within a
// single day.
func (c *SoilColumn) ApplyPossibleDelayedFertiliser() {
	pending := c.deferredNMin
	c.deferredNMin = nil
	for _, call := range pending {
		c.ApplyMineralFertiliserViaNMin(call.Params)
	}
}

// ApplyIrrigation adds water to surface storage and N mass to top-layer NO3 (§4.1).
func (c *SoilColumn) ApplyIrrigation(amountMM, nConcentrationMgL float64) {
	if amountMM <= 0 {
		return
	}
	c.SurfaceWaterStorage += amountMM
	if len(c.Layers) == 0 {
		return
	}
	top := c.Layers[0]
	// mg/L * mm water / 1000 m2-mm-per-m3 ... kg N/m3 added = amountMM(mm) * 1e-3(m) *
	// nConc(mg/L) * 1(L/dm3=1e-3 m3... ) simplifies to nConc[mg/L] * amount[mm] * 1e-6 / thickness[m]
	addedKgNPerM3 := (nConcentrationMgL * amountMM * 1e-6) / top.Thickness
	top.NO3 += addedKgNPerM3
}

// ApplyIrrigationViaTrigger applies irrigation only within the crop's heat-sum
// irrigation window, and only when plant-available water over the critical
// moisture depth has fallen to or below the threshold fraction (§4.1).
func (c *SoilColumn) ApplyIrrigationViaTrigger(crop *Crop, threshold, amountMM, nConcMgL float64) bool {
	if crop == nil {
		return false
	}
	if !crop.withinIrrigationWindow() {
		return false
	}
	if c.plantAvailableWaterFraction(c.Env.CriticalMoistureDepth) > threshold {
		return false
	}
	c.ApplyIrrigation(amountMM, nConcMgL)
	return true
}

// plantAvailableWaterFraction returns the fraction of plant-available water
// remaining over the given depth. The irrigation trigger (§4.1) samples it
// over CriticalMoistureDepth alone, matching original_source's
// vi_CriticalMoistureDepth gate, which has no rooting-depth term; the
// drought-stress factor (§4.6) samples it over the crop's rooting depth.
func (c *SoilColumn) plantAvailableWaterFraction(depth float64) float64 {
	k := c.LayerNumberForDepth(depth)
	var avail, capacity float64
	for i := 0; i <= k && i < len(c.Layers); i++ {
		l := c.Layers[i]
		avail += (l.Moisture - l.Params.PermanentWiltingPoint) * l.Thickness
		capacity += (l.Params.FieldCapacity - l.Params.PermanentWiltingPoint) * l.Thickness
	}
	if capacity <= 0 {
		return 0
	}
	frac := avail / capacity
	if frac < 0 {
		return 0
	}
	return frac
}

// ApplyTillage averages C pools, N pools, temperature, moisture, and AOM-pool
// contents across layers 0..k-1 (k = LayerNumberForDepth(depth)+1, i.e. up to and
// including the layer containing depth) and writes the mean back to each (§4.1). Per §9's
// preserved-behaviour note, tillage never touches an active crop's rooting depth.
func (c *SoilColumn) ApplyTillage(depth float64) {
	if len(c.Layers) == 0 {
		return
	}
	k := c.LayerNumberForDepth(depth) + 1
	if k > len(c.Layers) {
		k = len(c.Layers)
	}
	if k < 1 {
		k = 1
	}
	layers := c.Layers[:k]
	n := float64(len(layers))

	var sumSMBSlow, sumSMBFast, sumSOMSlow, sumSOMFast float64
	var sumNH4, sumNO2, sumNO3, sumCarbamide float64
	var sumTemp, sumMoisture, sumBulkDensity float64
	for _, l := range layers {
		sumSMBSlow += l.SMBSlow
		sumSMBFast += l.SMBFast
		sumSOMSlow += l.SOMSlow
		sumSOMFast += l.SOMFast
		sumNH4 += l.NH4
		sumNO2 += l.NO2
		sumNO3 += l.NO3
		sumCarbamide += l.Carbamide
		sumTemp += l.Temperature
		sumMoisture += l.Moisture
		sumBulkDensity += l.BulkDensity
	}

	// Average AOM pools by ID across the tilled layers; a pool missing from some
	// layers contributes zero for those layers (matches the original's dense
	// per-layer AOM vector semantics).
	aomSums := map[int]*AOMPool{}
	for _, l := range layers {
		for _, p := range l.AOMPools {
			acc, ok := aomSums[p.ID]
			if !ok {
				acc = &AOMPool{ID: p.ID,
					SlowDecCoeffStandard: p.SlowDecCoeffStandard, FastDecCoeffStandard: p.FastDecCoeffStandard,
					PartSlowToSMBSlow: p.PartSlowToSMBSlow, PartSlowToSMBFast: p.PartSlowToSMBFast,
					CNRatioSlow: p.CNRatioSlow, CNRatioFast: p.CNRatioFast,
					DryMatterContent: p.DryMatterContent, NH4Content: p.NH4Content,
					DaysAfterApplication: p.DaysAfterApplication, Incorporation: p.Incorporation,
				}
				aomSums[p.ID] = acc
			}
			acc.CSlow += p.CSlow
			acc.CFast += p.CFast
		}
	}
	ids := make([]int, 0, len(aomSums))
	for id := range aomSums {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, l := range layers {
		l.SMBSlow = sumSMBSlow / n
		l.SMBFast = sumSMBFast / n
		l.SOMSlow = sumSOMSlow / n
		l.SOMFast = sumSOMFast / n
		l.NH4 = sumNH4 / n
		l.NO2 = sumNO2 / n
		l.NO3 = sumNO3 / n
		l.Carbamide = sumCarbamide / n
		l.Temperature = sumTemp / n
		l.Moisture = sumMoisture / n
		l.BulkDensity = sumBulkDensity / n

		newPools := make([]*AOMPool, 0, len(ids))
		for _, id := range ids {
			acc := aomSums[id]
			newPools = append(newPools, &AOMPool{
				ID: id, CSlow: acc.CSlow / n, CFast: acc.CFast / n,
				SlowDecCoeffStandard: acc.SlowDecCoeffStandard, FastDecCoeffStandard: acc.FastDecCoeffStandard,
				PartSlowToSMBSlow: acc.PartSlowToSMBSlow, PartSlowToSMBFast: acc.PartSlowToSMBFast,
				CNRatioSlow: acc.CNRatioSlow, CNRatioFast: acc.CNRatioFast,
				DryMatterContent: acc.DryMatterContent, NH4Content: acc.NH4Content,
				DaysAfterApplication: acc.DaysAfterApplication, Incorporation: acc.Incorporation,
			})
		}
		l.AOMPools = newPools
	}
}

// newAOMPoolID allocates a stable identity for a new AOM pool instance.
func (c *SoilColumn) newAOMPoolID() int {
	id := c.nextAOMPoolID
	c.nextAOMPoolID++
	return id
}

// DeleteAOMPool removes, from every layer, any AOM pool whose summed slow+fast C
// across the organic layers has fallen below aomRemovalThreshold (§3 lifecycle).
func (c *SoilColumn) DeleteAOMPool() {
	nOrganic := c.NumberOfOrganicLayers()
	totals := map[int]float64{}
	for i := 0; i < nOrganic && i < len(c.Layers); i++ {
		for _, p := range c.Layers[i].AOMPools {
			totals[p.ID] += p.totalC() * c.Layers[i].Thickness // kg C/m2
		}
	}
	remove := map[int]bool{}
	for id, total := range totals {
		if total < aomRemovalThreshold {
			remove[id] = true
		}
	}
	if len(remove) == 0 {
		return
	}
	for _, l := range c.Layers {
		kept := l.AOMPools[:0]
		for _, p := range l.AOMPools {
			if !remove[p.ID] {
				kept = append(kept, p)
			}
		}
		l.AOMPools = kept
	}
}

// clampInvariants enforces the §8 per-layer invariants across the whole column.
func (c *SoilColumn) clampInvariants(day int) {
	for i, l := range c.Layers {
		l.clampInvariants(c.sink, "SoilColumn", day, i)
	}
}

// detectGroundwaterLayer finds the first saturated layer from the bottom of the
// column, clamped to the configured groundwater depth range (§4.3 step 1).
func (c *SoilColumn) detectGroundwaterLayer(siteMinDepth, siteMaxDepth float64) int {
	minIdx := c.LayerNumberForDepth(siteMinDepth)
	maxIdx := c.LayerNumberForDepth(siteMaxDepth)
	for i := len(c.Layers) - 1; i >= 0; i-- {
		if i < minIdx || i > maxIdx {
			continue
		}
		if c.Layers[i].Moisture >= c.Layers[i].Params.Saturation-1e-9 {
			c.GroundwaterLayer = i
			return i
		}
	}
	c.GroundwaterLayer = -1
	return -1
}
