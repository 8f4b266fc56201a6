package monica

// aomRemovalThreshold is the small mass below which an AOM pool is considered
// exhausted and removed from every layer (§3 AOM pool lifecycle: "≈ 1e-5 kg C/m²").
const aomRemovalThreshold = 1e-5

// AOMPool is one "Added Organic Matter" instance: an organic input (manure, crop
// residue, ...) tracked with its own decomposition coefficients and C:N ratios,
// grounded on original_source/src/core/soilcolumn.h's AOM_Properties. AOM pools are
// exclusively owned by SoilColumn (§3); SoilOrganic mutates them only through the
// column's accessors.
type AOMPool struct {
	ID int // stable identity shared across every layer's copy of this pool

	CSlow float64 // kg C/m3
	CFast float64

	SlowDecCoeffStandard float64 // decomposition rate coefficient at standard conditions
	FastDecCoeffStandard float64

	PartSlowToSMBSlow float64 // fraction of AOM_slow decay routed to SMB_slow
	PartSlowToSMBFast float64 // remainder routed to SMB_fast

	CNRatioSlow float64
	CNRatioFast float64 // may be derived dynamically for plant residue, see AddOrganicMatter

	DryMatterContent float64 // kg DM / kg fresh matter, fertiliser application parameter
	NH4Content       float64 // kg NH4-N / kg DM, fertiliser application parameter

	DaysAfterApplication int
	Incorporation        bool // true if this organic matter was tilled in
}

// totalC returns the slow+fast carbon mass of this pool instance in a single layer.
func (p *AOMPool) totalC() float64 {
	return p.CSlow + p.CFast
}

// clampNonNegative keeps pool carbon masses within the ≥0 invariant of §3/§8 after a
// decomposition step may have overshot due to floating point error.
func (p *AOMPool) clampNonNegative() {
	if p.CSlow < 0 {
		p.CSlow = 0
	}
	if p.CFast < 0 {
		p.CFast = 0
	}
}
