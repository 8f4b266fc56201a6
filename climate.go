package monica

import (
	"fmt"
	"math"
)

// ClimateDay is one daily weather record (§3). Ordered sequences of these are
// finite and not restartable within a run: a ClimateSeries is consumed strictly
// forward.
type ClimateDay struct {
	Year, Month, Day int

	TMin, TMean, TMax float64 // °C
	Precipitation     float64 // mm
	GlobalRadiation   float64 // MJ/m2
	RelativeHumidity  float64 // 0-1
	WindSpeed         float64 // m/s

	SunshineHours float64 // optional, 0 means "not provided"
	ReferenceET0  float64 // optional, mm/d, 0 means "not provided" (see §9 ET precedence rule)
}

// Valid reports whether this record has finite, physically sane values — an
// InputDataError source per §7.
func (d ClimateDay) Valid() error {
	for _, v := range []float64{d.TMin, d.TMean, d.TMax, d.Precipitation, d.GlobalRadiation,
		d.RelativeHumidity, d.WindSpeed, d.SunshineHours, d.ReferenceET0} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("climate record %04d-%02d-%02d: non-finite value %v", d.Year, d.Month, d.Day, v)
		}
	}
	if d.TMax < d.TMin {
		return fmt.Errorf("climate record %04d-%02d-%02d: tmax %.2f < tmin %.2f", d.Year, d.Month, d.Day, d.TMax, d.TMin)
	}
	if d.Precipitation < 0 {
		return fmt.Errorf("climate record %04d-%02d-%02d: negative precipitation %.2f", d.Year, d.Month, d.Day, d.Precipitation)
	}
	if d.RelativeHumidity < 0 || d.RelativeHumidity > 1.2 {
		return fmt.Errorf("climate record %04d-%02d-%02d: relative humidity %.2f out of range", d.Year, d.Month, d.Day, d.RelativeHumidity)
	}
	return nil
}

// ClimateSeries is the ordered, finite sequence of daily weather records covering
// the simulation window (§3, §6).
type ClimateSeries struct {
	Days []ClimateDay
}

// Len returns the number of days in the series.
func (s *ClimateSeries) Len() int { return len(s.Days) }

// At returns the record for day index i (0-based), and whether i is in range.
func (s *ClimateSeries) At(i int) (ClimateDay, bool) {
	if i < 0 || i >= len(s.Days) {
		return ClimateDay{}, false
	}
	return s.Days[i], true
}

// DayOfYear returns the 1-366 day-of-year for record i, used by CropGrowth's
// radiation-geometry computation (§4.6).
func (s *ClimateSeries) DayOfYear(i int) int {
	d, ok := s.At(i)
	if !ok {
		return 0
	}
	days := []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if isLeap(d.Year) {
		days[1] = 29
	}
	doy := d.Day
	for m := 0; m < d.Month-1; m++ {
		doy += days[m]
	}
	return doy
}

func isLeap(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}
