// Package config ingests the site, soil, crop, fertiliser and management-plan
// files that drive a simulation run — a collaborator the core simulation package
// deliberately excludes (it operates on already-validated in-memory parameter
// blocks). Management plans and the top-level run file are TOML; crop/soil/
// fertiliser catalogues are JSON, mirroring the split the teacher's own
// configuration loader (inmaputil/config.go) makes between its single TOML
// config file and the shapefiles/rasters it references by path.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	monica "github.com/zalf-rpm/monica-sub003"
)

// RunConfig is the top-level TOML file passed to `monica run --config`.
type RunConfig struct {
	Site        SiteConfig `toml:"site"`
	Environment EnvConfig  `toml:"environment"`

	ClimateFile     string `toml:"climate_file"`
	SoilFile        string `toml:"soil_file"`
	CropFile        string `toml:"crop_catalogue_file"`
	FertiliserFile  string `toml:"fertiliser_catalogue_file"`
	ManagementFile  string `toml:"management_file"`

	BaseTemperature float64 `toml:"base_temperature_c"`
	OutputIDs       []string `toml:"output_ids"`
	OutputFormat    string   `toml:"output_format"` // "csv" or "json"
	OutputFile      string   `toml:"output_file"`
}

// SiteConfig mirrors monica.SiteParameters for TOML decoding.
type SiteConfig struct {
	LatitudeDeg         float64 `toml:"latitude_deg"`
	SlopePercent        float64 `toml:"slope_percent"`
	HeightAboveSeaLevel float64 `toml:"height_above_sea_level_m"`
	SoilCN              float64 `toml:"soil_cn"`
	NDepositionKgHaYr   float64 `toml:"n_deposition_kg_ha_yr"`
	GroundwaterMinDepth float64 `toml:"groundwater_min_depth_m"`
	GroundwaterMaxDepth float64 `toml:"groundwater_max_depth_m"`
	GroundwaterMinMonth int     `toml:"groundwater_min_month"`
}

func (c SiteConfig) toParams() monica.SiteParameters {
	return monica.SiteParameters{
		LatitudeDeg:         c.LatitudeDeg,
		SlopePercent:        c.SlopePercent,
		HeightAboveSeaLevel: c.HeightAboveSeaLevel,
		SoilCN:              c.SoilCN,
		NDepositionKgHaYr:   c.NDepositionKgHaYr,
		GroundwaterMinDepth: c.GroundwaterMinDepth,
		GroundwaterMaxDepth: c.GroundwaterMaxDepth,
		GroundwaterMinMonth: c.GroundwaterMinMonth,
	}
}

// EnvConfig mirrors monica.EnvironmentParameters for TOML decoding, falling back
// to DefaultEnvironmentParameters for any zero-valued field.
type EnvConfig struct {
	LayerThickness             float64 `toml:"layer_thickness_m"`
	NumberOfLayers             int     `toml:"number_of_layers"`
	LeachingDepth              float64 `toml:"leaching_depth_m"`
	Albedo                     float64 `toml:"albedo"`
	AtmosphericCO2             float64 `toml:"atmospheric_co2_ppm"`
	WindSpeedHeight            float64 `toml:"wind_speed_height_m"`
	MaxMineralisationDepth     float64 `toml:"max_mineralisation_depth_m"`
	CriticalMoistureDepth      float64 `toml:"critical_moisture_depth_m"`
	MaxPercolationRateMM       float64 `toml:"max_percolation_rate_mm"`
	SurfaceRoughness           float64 `toml:"surface_roughness"`
	HydraulicConductivityRedux float64 `toml:"hydraulic_conductivity_redux"`
}

func (c EnvConfig) toParams() monica.EnvironmentParameters {
	d := monica.DefaultEnvironmentParameters()
	if c.LayerThickness > 0 {
		d.LayerThickness = c.LayerThickness
	}
	if c.NumberOfLayers > 0 {
		d.NumberOfLayers = c.NumberOfLayers
	}
	if c.LeachingDepth > 0 {
		d.LeachingDepth = c.LeachingDepth
	}
	if c.Albedo > 0 {
		d.Albedo = c.Albedo
	}
	if c.AtmosphericCO2 > 0 {
		d.AtmosphericCO2 = c.AtmosphericCO2
	}
	if c.WindSpeedHeight > 0 {
		d.WindSpeedHeight = c.WindSpeedHeight
	}
	if c.MaxMineralisationDepth > 0 {
		d.MaxMineralisationDepth = c.MaxMineralisationDepth
	}
	if c.CriticalMoistureDepth > 0 {
		d.CriticalMoistureDepth = c.CriticalMoistureDepth
	}
	if c.MaxPercolationRateMM > 0 {
		d.MaxPercolationRateMM = c.MaxPercolationRateMM
	}
	if c.SurfaceRoughness > 0 {
		d.SurfaceRoughness = c.SurfaceRoughness
	}
	if c.HydraulicConductivityRedux > 0 {
		d.HydraulicConductivityRedux = c.HydraulicConductivityRedux
	}
	d.TimeStepDays = 1
	return d
}

// ReadRunConfig parses the top-level TOML run file.
func ReadRunConfig(path string) (*RunConfig, error) {
	var cfg RunConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return &cfg, nil
}

// soilLayerEntry is one JSON record of the soil catalogue.
type soilLayerEntry struct {
	Sand                     float64 `json:"sand"`
	Clay                     float64 `json:"clay"`
	Stone                    float64 `json:"stone"`
	TextureClass             string  `json:"texture_class"`
	PH                       float64 `json:"ph"`
	Lambda                   float64 `json:"lambda"`
	SaturatedConductivityMMd float64 `json:"saturated_conductivity_mm_d"`
	FieldCapacity            float64 `json:"field_capacity"`
	Saturation               float64 `json:"saturation"`
	PermanentWiltingPoint    float64 `json:"permanent_wilting_point"`
	BulkDensity              float64 `json:"bulk_density_kg_m3"`
	InitialSOC               float64 `json:"initial_soc_fraction"`
	InitialNH4               float64 `json:"initial_nh4_kg_m3"`
	InitialNO3               float64 `json:"initial_no3_kg_m3"`
}

// ReadSoilProfile reads the ordered list of layer parameters from a JSON file
// (§6 "Soil parameters per layer").
func ReadSoilProfile(path string) ([]monica.SoilLayerParameters, error) {
	var entries []soilLayerEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	out := make([]monica.SoilLayerParameters, len(entries))
	for i, e := range entries {
		if e.Sand+e.Clay+e.Stone > 1.0 {
			return nil, fmt.Errorf("config: soil layer %d: sand+clay+stone = %.4g exceeds 1.0", i, e.Sand+e.Clay+e.Stone)
		}
		out[i] = monica.SoilLayerParameters{
			Sand: e.Sand, Clay: e.Clay, Stone: e.Stone,
			TextureClass: e.TextureClass, PH: e.PH, Lambda: e.Lambda,
			SaturatedConductivityMMd: e.SaturatedConductivityMMd,
			FieldCapacity:            e.FieldCapacity,
			Saturation:               e.Saturation,
			PermanentWiltingPoint:    e.PermanentWiltingPoint,
			BulkDensity:              e.BulkDensity,
			InitialSOC:               e.InitialSOC,
			InitialNH4:               e.InitialNH4,
			InitialNO3:               e.InitialNO3,
		}
	}
	return out, nil
}

// cropStageEntry/cropEntry mirror monica.CropStage/CropParameters for JSON
// decoding of the crop catalogue (§6 "Crop catalogue: for each crop id, the
// species/cultivar parameter block").
type cropStageEntry struct {
	Name                 string     `json:"name"`
	TemperatureSum       float64    `json:"temperature_sum"`
	BaseTemperature      float64    `json:"base_temperature"`
	OptimumTemperature   float64    `json:"optimum_temperature"`
	KcFactor             float64    `json:"kc_factor"`
	Partitioning         [4]float64 `json:"partitioning_root_leaf_shoot_storage"`
	SenescenceRate       [4]float64 `json:"senescence_rate_root_leaf_shoot_storage"`
	NConcentrationTarget float64    `json:"n_concentration_target"`
}

type cropEntry struct {
	Name                         string           `json:"name"`
	Stages                       []cropStageEntry `json:"stages"`
	SpecificLeafArea             float64          `json:"specific_leaf_area"`
	AssimilationAMAX             float64          `json:"assimilation_amax"`
	MaxRootingDepthM             float64          `json:"max_rooting_depth_m"`
	RootPenetrationRate          float64          `json:"root_penetration_rate_m_d"`
	FrostKillThreshold           float64          `json:"frost_kill_threshold_c"`
	HeatStressThreshold          float64          `json:"heat_stress_threshold_c"`
	IrrigationStartHeatSum       float64          `json:"irrigation_start_heat_sum"`
	IrrigationEndHeatSum         float64          `json:"irrigation_end_heat_sum"`
	VernalisationRequirementDays float64          `json:"vernalisation_requirement_days"`
}

// ReadCropCatalogue reads the id -> CropParameters catalogue from JSON.
func ReadCropCatalogue(path string) (map[string]monica.CropParameters, error) {
	var entries map[string]cropEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]monica.CropParameters, len(entries))
	for id, e := range entries {
		stages := make([]monica.CropStage, len(e.Stages))
		for i, st := range e.Stages {
			stages[i] = monica.CropStage{
				Name: st.Name, TemperatureSum: st.TemperatureSum,
				BaseTemperature: st.BaseTemperature, OptimumTemperature: st.OptimumTemperature,
				KcFactor:             st.KcFactor,
				Partitioning:         st.Partitioning,
				SenescenceRate:       st.SenescenceRate,
				NConcentrationTarget: st.NConcentrationTarget,
			}
		}
		out[id] = monica.CropParameters{
			Name: e.Name, Stages: stages,
			SpecificLeafArea: e.SpecificLeafArea, AssimilationAMAX: e.AssimilationAMAX,
			MaxRootingDepthM: e.MaxRootingDepthM, RootPenetrationRate: e.RootPenetrationRate,
			FrostKillThreshold: e.FrostKillThreshold, HeatStressThreshold: e.HeatStressThreshold,
			IrrigationStartHeatSum: e.IrrigationStartHeatSum, IrrigationEndHeatSum: e.IrrigationEndHeatSum,
			VernalisationRequirementDays: e.VernalisationRequirementDays,
		}
	}
	return out, nil
}

// FertiliserCatalogue is the id -> parameter-block lookup for mineral and organic
// fertilisers (§6 "Fertiliser catalogue").
type FertiliserCatalogue struct {
	Mineral map[string]monica.MineralFertiliserParameters
	Organic map[string]monica.OrganicFertiliserParameters
}

type fertiliserFile struct {
	Mineral map[string]monica.MineralFertiliserParameters `json:"mineral"`
	Organic map[string]monica.OrganicFertiliserParameters  `json:"organic"`
}

// ReadFertiliserCatalogue reads both mineral and organic fertiliser tables from
// one JSON file.
func ReadFertiliserCatalogue(path string) (*FertiliserCatalogue, error) {
	var f fertiliserFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	return &FertiliserCatalogue{Mineral: f.Mineral, Organic: f.Organic}, nil
}

// managementFile is the TOML shape of a management plan file: a flat list of
// dated events (§6 "Management plan: list of (date, action, parameters)
// triples").
type managementFile struct {
	Events []managementEventEntry `toml:"event"`
}

type managementEventEntry struct {
	Date   string  `toml:"date"` // YYYY-MM-DD
	Action string  `toml:"action"`

	CropID string `toml:"crop_id"`

	FertiliserID string  `toml:"fertiliser_id"`
	AmountKgHa   float64 `toml:"amount_kg_ha"`
	NConcentration float64 `toml:"n_concentration"`

	SamplingDepthM   float64 `toml:"sampling_depth_m"`
	NTargetKgHa      float64 `toml:"n_target_kg_ha"`
	NTarget30cmKgHa  float64 `toml:"n_target_30cm_kg_ha"`
	MinApplicationKgHa float64 `toml:"min_application_kg_ha"`
	MaxApplicationKgHa float64 `toml:"max_application_kg_ha"`
	TopDressingDelayDays int   `toml:"top_dressing_delay_days"`

	DepthM float64 `toml:"depth_m"`

	AmountMM          float64 `toml:"amount_mm"`
	ViaTrigger        bool    `toml:"via_trigger"`
	TriggerThreshold  float64 `toml:"trigger_threshold"`

	Organs         []string `toml:"organs"`
	CutFraction    float64  `toml:"cut_fraction"`
	ExportFraction float64  `toml:"export_fraction"`

	HarvestPercentage float64 `toml:"harvest_percentage"`
}

var organByName = map[string]monica.Organ{
	"root":    monica.OrganRoot,
	"leaf":    monica.OrganLeaf,
	"shoot":   monica.OrganShoot,
	"storage": monica.OrganStorage,
}

// ReadManagementPlan reads and translates a TOML management-plan file into a
// monica.ManagementPlan, resolving fertiliser ids against the given catalogue.
func ReadManagementPlan(path string, fert *FertiliserCatalogue) (*monica.ManagementPlan, error) {
	var mf managementFile
	if _, err := toml.DecodeFile(path, &mf); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	plan := &monica.ManagementPlan{}
	for _, e := range mf.Events {
		var year, month, day int
		if _, err := fmt.Sscanf(e.Date, "%04d-%02d-%02d", &year, &month, &day); err != nil {
			return nil, fmt.Errorf("config: event date %q: %w", e.Date, err)
		}
		ev := monica.ManagementEvent{Year: year, Month: month, Day: day}
		switch e.Action {
		case "sow":
			ev.Kind = monica.ActionSow
			ev.CropID = e.CropID
		case "harvest":
			ev.Kind = monica.ActionHarvest
		case "mineral-fert":
			ev.Kind = monica.ActionMineralFertiliser
			ev.MineralFertiliser = fert.Mineral[e.FertiliserID]
			ev.MineralAmountKgHa = e.AmountKgHa
		case "mineral-fert-nmin":
			ev.Kind = monica.ActionMineralFertiliserViaNMin
			ev.NMin = monica.NMinFertiliserParameters{
				Partition:        fert.Mineral[e.FertiliserID],
				SamplingDepth:    e.SamplingDepthM,
				NTarget:          e.NTargetKgHa,
				NTarget30cm:      e.NTarget30cmKgHa,
				MinApplication:   e.MinApplicationKgHa,
				MaxApplication:   e.MaxApplicationKgHa,
				TopDressingDelay: e.TopDressingDelayDays,
			}
		case "organic-fert":
			ev.Kind = monica.ActionOrganicFertiliser
			ev.OrganicFertiliser = fert.Organic[e.FertiliserID]
			ev.OrganicAmountKgHa = e.AmountKgHa
			ev.OrganicNConcentration = e.NConcentration
		case "tillage":
			ev.Kind = monica.ActionTillage
			ev.TillageDepthM = e.DepthM
		case "irrigation":
			ev.Kind = monica.ActionIrrigation
			ev.IrrigationAmountMM = e.AmountMM
			ev.IrrigationNConcentration = e.NConcentration
			ev.IrrigationViaTrigger = e.ViaTrigger
			ev.IrrigationTriggerThreshold = e.TriggerThreshold
		case "cut":
			ev.Kind = monica.ActionCut
			for _, name := range e.Organs {
				if o, ok := organByName[name]; ok {
					ev.CutOrgans = append(ev.CutOrgans, o)
				}
			}
			ev.CutFraction = e.CutFraction
			ev.CutExportFraction = e.ExportFraction
		case "fruit-harvest":
			ev.Kind = monica.ActionFruitHarvest
			ev.FruitHarvestPercentage = e.HarvestPercentage
		default:
			return nil, fmt.Errorf("config: unknown management action %q", e.Action)
		}
		plan.Events = append(plan.Events, ev)
	}
	return plan, nil
}

// climateEntry is one JSON record of the climate series file.
type climateEntry struct {
	Year  int `json:"y"`
	Month int `json:"m"`
	Day   int `json:"d"`

	TMin  float64 `json:"tmin"`
	TMean float64 `json:"tmean"`
	TMax  float64 `json:"tmax"`

	Precipitation    float64 `json:"precip"`
	GlobalRadiation  float64 `json:"globrad"`
	RelativeHumidity float64 `json:"relhumid"`
	WindSpeed        float64 `json:"wind"`
	SunshineHours    float64 `json:"sunhours"`
	ReferenceET0     float64 `json:"et0"`
}

// ReadClimateSeries reads the ordered daily-weather JSON array (§3 "Climate
// record").
func ReadClimateSeries(path string) (*monica.ClimateSeries, error) {
	var entries []climateEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	days := make([]monica.ClimateDay, len(entries))
	for i, e := range entries {
		days[i] = monica.ClimateDay{
			Year: e.Year, Month: e.Month, Day: e.Day,
			TMin: e.TMin, TMean: e.TMean, TMax: e.TMax,
			Precipitation: e.Precipitation, GlobalRadiation: e.GlobalRadiation,
			RelativeHumidity: e.RelativeHumidity, WindSpeed: e.WindSpeed,
			SunshineHours: e.SunshineHours, ReferenceET0: e.ReferenceET0,
		}
		if err := days[i].Valid(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return &monica.ClimateSeries{Days: days}, nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return nil
}

func (c RunConfig) SiteParameters() monica.SiteParameters { return c.Site.toParams() }

func (c RunConfig) EnvironmentParameters() monica.EnvironmentParameters { return c.Environment.toParams() }
