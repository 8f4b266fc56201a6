package monica

import (
	"fmt"
	"sync"
)

// ObservationRecord is one day's output row: the observable state selected by the
// output-id table (§6 "Outputs per day"), plus a status column surfacing any
// diagnostics reported that day (§7 "simulation output rows contain a status
// column").
type ObservationRecord struct {
	Year, Month, Day int
	DayIndex         int

	Column *SoilColumn
	Crop   *Crop // nil if no crop is planted

	SurfaceTemperature float64
	Diagnostics        []*Diagnostic
}

// Simulation owns a SoilColumn, a ClimateSeries and the five process modules for
// one site, and drives the fixed daily ordering contract (§2, §5): management →
// temperature → moisture → organic → transport → crop → observation. It never
// spawns goroutines inside Step; RunBatch is the only place concurrency appears,
// mirroring the teacher's separation between a sequential per-cell calculation and
// a fan-out batch runner.
type Simulation struct {
	Site    SiteParameters
	Climate *ClimateSeries
	Plan    *ManagementPlan

	CropCatalogue      map[string]CropParameters
	MineralFertilisers map[string]MineralFertiliserParameters
	OrganicFertilisers map[string]OrganicFertiliserParameters

	Column      *SoilColumn
	Temperature *SoilTemperature
	Moisture    *SoilMoisture
	Organic     *SoilOrganic
	Transport   *SoilTransport
	Crop        *Crop

	Sink *DiagnosticsSink

	Observations []ObservationRecord
}

// NewSimulation wires a fresh column and the five process modules together, ready
// to run from the first climate record (§3 "Ownership summary": the simulation
// owns the column and climate series).
func NewSimulation(site SiteParameters, env EnvironmentParameters, layers []SoilLayerParameters, climate *ClimateSeries, plan *ManagementPlan, baseTemperature float64) *Simulation {
	sink := NewDiagnosticsSink()
	column := NewSoilColumn(env, layers, sink)
	return &Simulation{
		Site:               site,
		Climate:            climate,
		Plan:               plan,
		CropCatalogue:      map[string]CropParameters{},
		MineralFertilisers: map[string]MineralFertiliserParameters{},
		OrganicFertilisers: map[string]OrganicFertiliserParameters{},
		Column:             column,
		Temperature:        NewSoilTemperature(column, baseTemperature, sink),
		Moisture:           NewSoilMoisture(column, sink),
		Organic:            NewSoilOrganic(sink),
		Transport:          NewSoilTransport(sink),
		Sink:               sink,
	}
}

// Run steps the simulation forward over the whole climate series, returning a
// fatal error immediately if one is reported (§7 propagation policy: "only
// configuration and I/O failures terminate the run").
func (s *Simulation) Run() error {
	for i := 0; i < s.Climate.Len(); i++ {
		if err := s.Step(i); err != nil {
			return err
		}
	}
	return nil
}

// Step advances the simulation by exactly one day, in the fixed ordering contract
// of §2/§5: resolve climate → apply management → temperature → moisture →
// organic → transport → crop → observation.
func (s *Simulation) Step(i int) error {
	day, ok := s.Climate.At(i)
	if !ok {
		s.Sink.Report(InputDataError, "Simulation", i, -1, "climate index %d out of range", i)
		return s.Sink.FirstFatal()
	}
	if err := day.Valid(); err != nil {
		s.Sink.Report(InputDataError, "Simulation", i, -1, "%v", err)
		return s.Sink.FirstFatal()
	}

	s.Column.ApplyPossibleTopDressing()
	s.Column.ApplyPossibleDelayedFertiliser()
	s.applyManagement(i, day)

	snowDepthBefore := s.Moisture.Snow.DepthMM
	temperatureUnderSnow := s.Moisture.Frost.TemperatureUnderSnow(day.TMean, snowDepthBefore)
	s.Temperature.Step(i, day.TMin, day.TMax, day.GlobalRadiation, s.Crop, snowDepthBefore, temperatureUnderSnow)

	var cropET0 float64
	if s.Crop != nil {
		cropET0 = day.ReferenceET0
	}
	s.Moisture.Step(i, day, s.Site, s.Crop, cropET0)

	s.Organic.Step(s.Column, i, day.Precipitation, day.TMean, day.WindSpeed, s.Temperature)

	var uptakeDemand []float64
	if s.Crop != nil {
		uptakeDemand = s.Crop.PendingNUptakeDemand
	}
	s.Transport.Step(i, s.Column, s.Site, s.Crop != nil, uptakeDemand)
	if s.Crop != nil {
		s.Crop.NContent += s.Column.DailyCropNUptake / 10000
	}

	if s.Crop != nil {
		doy := s.Climate.DayOfYear(i)
		s.Crop.Step(day, doy, s.Site, s.Column, s.Temperature)
		if s.Crop.DyingOut {
			s.harvestCurrentCrop()
		}
	}

	s.Column.clampInvariants(i)

	columnSnapshot := *s.Column
	columnSnapshot.Layers = make([]*SoilLayer, len(s.Column.Layers))
	for j, l := range s.Column.Layers {
		layerSnapshot := *l
		columnSnapshot.Layers[j] = &layerSnapshot
	}
	var cropSnapshot *Crop
	if s.Crop != nil {
		c := *s.Crop
		cropSnapshot = &c
	}
	s.Observations = append(s.Observations, ObservationRecord{
		Year: day.Year, Month: day.Month, Day: day.Day, DayIndex: i,
		Column:             &columnSnapshot,
		Crop:               cropSnapshot,
		SurfaceTemperature: s.Temperature.SurfaceTemperature(),
		Diagnostics:        s.Sink.ForDay(i),
	})

	if s.Sink.HasFatal() {
		return s.Sink.FirstFatal()
	}
	return nil
}

// applyManagement dispatches every event scheduled for the current date to the
// matching SoilColumn/Crop operation (§6 management plan).
func (s *Simulation) applyManagement(dayIndex int, day ClimateDay) {
	events := s.Plan.eventsOn(day.Year, day.Month, day.Day)
	for _, e := range events {
		switch e.Kind {
		case ActionSow:
			params, ok := s.CropCatalogue[e.CropID]
			if !ok {
				s.Sink.Report(ConfigurationError, "Simulation", dayIndex, -1, "sow: unknown crop id %q", e.CropID)
				continue
			}
			s.Crop = NewCrop(params, s.Sink)
			s.Organic.SeasonTotals = SoilOrganicSeasonTotals{}
			s.Transport.SeasonTotals = SoilTransportSeasonTotals{}
		case ActionHarvest:
			s.harvestCurrentCrop()
		case ActionMineralFertiliser:
			s.Column.ApplyMineralFertiliser(e.MineralFertiliser, e.MineralAmountKgHa)
		case ActionMineralFertiliserViaNMin:
			s.Column.ApplyMineralFertiliserViaNMin(e.NMin)
		case ActionOrganicFertiliser:
			s.Organic.AddOrganicMatter(s.Column, e.OrganicFertiliser, e.OrganicAmountKgHa, e.OrganicNConcentration)
		case ActionTillage:
			s.Column.ApplyTillage(e.TillageDepthM)
		case ActionIrrigation:
			if e.IrrigationViaTrigger {
				s.Column.ApplyIrrigationViaTrigger(s.Crop, e.IrrigationTriggerThreshold, e.IrrigationAmountMM, e.IrrigationNConcentration)
			} else {
				s.Column.ApplyIrrigation(e.IrrigationAmountMM, e.IrrigationNConcentration)
			}
		case ActionCut:
			if s.Crop == nil {
				continue
			}
			residue := s.Crop.ApplyCutting(e.CutOrgans, e.CutFraction, e.CutExportFraction)
			s.incorporateResidue(residue)
		case ActionFruitHarvest:
			if s.Crop == nil {
				continue
			}
			s.Crop.ApplyFruitHarvest(e.FruitHarvestPercentage)
		}
	}
}

// harvestCurrentCrop routes the standing crop's non-storage biomass to SoilOrganic
// and clears the active crop (§4.6 incorporate_current_crop, §3 Crop lifecycle).
func (s *Simulation) harvestCurrentCrop() {
	if s.Crop == nil {
		return
	}
	residueKgM2, nConc := s.Crop.IncorporateCurrentCrop()
	if residueKgM2 > 0 {
		s.Organic.AddOrganicMatter(s.Column, OrganicFertiliserParameters{
			Name:                "crop-residue",
			AOMSlowDecCoeffStd:  0.02,
			AOMFastDecCoeffStd:  0.1,
			PartAOMSlowToSMBSlow: 0.6,
			PartAOMSlowToSMBFast: 0.4,
			CNRatioAOMSlow:      15,
			CNRatioAOMFastCap:   60,
			DryMatterContent:    1.0,
			PartToSlow:          0.6,
			PartToFast:          0.2,
		}, residueKgM2*10000, nConc)
	}
	s.Crop = nil
}

// incorporateResidue routes a cutting's residue biomass (kg DM/m2 per organ) to
// SoilOrganic, summed across organs, using the crop's current tissue N
// concentration (§4.6 apply_cutting: "leaving the rest as residues for SoilOrganic").
func (s *Simulation) incorporateResidue(residue [numOrgans]float64) {
	var total float64
	for _, r := range residue {
		total += r
	}
	if total <= 0 || s.Crop == nil {
		return
	}
	_, nConc := s.Crop.IncorporateCurrentCrop()
	s.Organic.AddOrganicMatter(s.Column, OrganicFertiliserParameters{
		Name:                "cutting-residue",
		AOMSlowDecCoeffStd:  0.03,
		AOMFastDecCoeffStd:  0.15,
		PartAOMSlowToSMBSlow: 0.6,
		PartAOMSlowToSMBFast: 0.4,
		CNRatioAOMSlow:      12,
		CNRatioAOMFastCap:   40,
		DryMatterContent:    1.0,
		PartToSlow:          0.5,
		PartToFast:          0.3,
	}, total*10000, nConc)
}

// RunBatch runs each site's simulation concurrently with a bounded worker pool,
// the deployment-level parallelism named in §5 ("concurrency across simulation
// units ... is embarrassingly parallel"). Each *Simulation owns its own column,
// crop and module state, so no synchronization is needed beyond the pool itself —
// the teacher's analogue is `Calculations`' fan-out over independent grid cells,
// generalised here to fan out over independent sites.
func RunBatch(sites []*Simulation, workers int) []error {
	if workers < 1 {
		workers = 1
	}
	errs := make([]error, len(sites))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := sites[idx].Run(); err != nil {
					errs[idx] = fmt.Errorf("site %d: %w", idx, err)
				}
			}
		}()
	}
	for i := range sites {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return errs
}
