package monica

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SoilTemperature computes the daily implicit heat-conduction update through the
// column (§4.2), grounded on original_source/src/core/soiltemperature.cpp and on
// the teacher's tridiagonal-system idiom (science.go's per-cell diffusive-flux
// bookkeeping in spatialmodel-inmap, generalised here from a horizontal/vertical
// grid-cell mixing problem to a 1D vertical conduction problem). The matrix is
// solved with gonum's Cholesky factorisation (A = LLᵀ) followed by a forward and a
// back substitution; no LDL′ form with a separate diagonal inversion is used. The
// system is rebuilt every day since moisture and bulk density change the heat
// capacity and conductivity fields.
type SoilTemperature struct {
	column *SoilColumn

	// BaseTemperature is the fixed temperature of the virtual "bottom" node,
	// conventionally the annual mean air temperature (§4.2).
	BaseTemperature float64

	surfaceTemperature     float64
	prevSurfaceTemperature float64

	// heat capacities: cWater and cAir per unit volume, J/(m3*K); cHumus and
	// cQuartz per unit mass, J/(kg*K), multiplied by the densities (kg/m3)
	cWater, cAir, cHumus, cQuartz float64
	densityHumus, densityQuartz   float64

	sink *DiagnosticsSink
}

// NewSoilTemperature builds the module bound to a column and the site's annual
// mean air temperature as the deep boundary condition.
func NewSoilTemperature(column *SoilColumn, baseTemperature float64, sink *DiagnosticsSink) *SoilTemperature {
	return &SoilTemperature{
		column:          column,
		BaseTemperature: baseTemperature,
		cWater:          4.2e6,
		cAir:            1300,
		cHumus:          1920,
		cQuartz:         750,
		densityHumus:    1300,
		densityQuartz:   2650,
		sink:            sink,
	}
}

// SurfaceTemperature returns the current surface temperature (°C).
func (t *SoilTemperature) SurfaceTemperature() float64 { return t.surfaceTemperature }

// Temperature returns layer i's temperature, or the surface temperature if i<0.
func (t *SoilTemperature) Temperature(i int) float64 {
	if i < 0 || i >= len(t.column.Layers) {
		return t.surfaceTemperature
	}
	return t.column.Layers[i].Temperature
}

// HeatConductivity returns layer i's heat conductivity [W/(m*K)] using Neusypina's
// empirical form in bulk density and moisture.
func (t *SoilTemperature) HeatConductivity(i int) float64 {
	if i < 0 || i >= len(t.column.Layers) {
		return 0
	}
	l := t.column.Layers[i]
	return neusypinaConductivity(l.BulkDensity, l.Moisture, l.LambdaRedux)
}

// neusypinaConductivity is the empirical heat-conductivity form referenced in §4.2:
// conductivity grows with bulk density and moisture, saturating smoothly; lambdaRedux
// (from the Frost subcomponent, §4.3) scales it down to 0 in fully frozen layers.
func neusypinaConductivity(bulkDensity, moisture, lambdaRedux float64) float64 {
	if bulkDensity <= 0 {
		return 0
	}
	rho := bulkDensity / 1000. // g/cm3
	base := 0.0036*rho*rho + 0.02 + 0.25*moisture
	if base < 0.05 {
		base = 0.05
	}
	return base * lambdaRedux
}

// AvgTopSoilTemperature returns the thickness-weighted average temperature of the
// layers whose cumulative thickness reaches `depth` (§4.2 query; §4.8 supplemented
// use by urea hydrolysis and crop emergence guards).
func (t *SoilTemperature) AvgTopSoilTemperature(depth float64) float64 {
	cum := 0.0
	var sumT, sumW float64
	for _, l := range t.column.Layers {
		if cum >= depth {
			break
		}
		remaining := depth - cum
		w := l.Thickness
		if remaining < w {
			w = remaining
		}
		sumT += l.Temperature * w
		sumW += w
		cum += l.Thickness
	}
	if sumW == 0 {
		return t.surfaceTemperature
	}
	return sumT / sumW
}

// shadingCoefficient returns the fraction of surface-temperature damping
// attributable to crop cover (§4.2: "s is a shading coefficient derived from
// current crop soil coverage").
func shadingCoefficient(crop *Crop) float64 {
	if crop == nil {
		return 0
	}
	return crop.SoilCoverage() * 0.5
}

// Step updates layer and surface temperatures for one day (§4.2).
//
// Surface T = (1-s)*(tmin + (tmax-tmin)*sqrt(0.03*max(globrad,8.33))) + s*T_surface_prev,
// with freezing damping (half the previous value if it was negative) and a
// snow-cover override from temperatureUnderSnow when snow is present.
func (t *SoilTemperature) Step(day int, tmin, tmax, globrad float64, crop *Crop, snowDepthMM, temperatureUnderSnow float64) {
	for _, v := range []float64{tmin, tmax, globrad} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.sink.Report(InputDataError, "SoilTemperature", day, -1, "non-finite climate input")
			return
		}
	}
	floored := globrad
	if floored < 8.33 {
		floored = 8.33
	}

	prev := t.surfaceTemperature
	if prev < 0 {
		prev = prev / 2
	}
	s := shadingCoefficient(crop)
	surface := (1-s)*(tmin+(tmax-tmin)*math.Sqrt(0.03*floored)) + s*prev

	if snowDepthMM > 0 {
		surface = temperatureUnderSnow
	}

	t.prevSurfaceTemperature = t.surfaceTemperature
	t.surfaceTemperature = surface

	t.solveConduction(surface)
}

// solveConduction builds the tridiagonal heat-conduction system for the current
// day's moisture/bulk-density state, as an implicit step of one day (86400 s),
// and solves it with solveTridiagonalLDL.
func (t *SoilTemperature) solveConduction(surfaceTemperature float64) {
	const secondsPerDay = 86400.0
	n := len(t.column.Layers)
	if n == 0 {
		return
	}

	// Build N+2 virtual nodes: surface (fixed Dirichlet), N real layers, base
	// (fixed Dirichlet at the annual mean).
	capacity := make([]float64, n) // volumetric heat capacity, J/(m3*K)
	conductivity := make([]float64, n)
	for i, l := range t.column.Layers {
		capacity[i] = l.Moisture*t.cWater + (l.Params.Saturation-l.Moisture)*t.cAir +
			l.SoilOrganicMatterFraction()*t.densityHumus*t.cHumus +
			(1-l.Params.Saturation-l.SoilOrganicMatterFraction())*t.densityQuartz*t.cQuartz
		conductivity[i] = neusypinaConductivity(l.BulkDensity, l.Moisture, l.LambdaRedux)
	}

	// Tridiagonal system: a (sub), b (diag), c (super), d (rhs).
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		dz := t.column.Layers[i].Thickness
		if dz <= 0 {
			dz = 0.1
		}
		kUp := conductivity[i]
		kDown := conductivity[i]
		if i+1 < n {
			kDown = 0.5 * (conductivity[i] + conductivity[i+1])
		}
		if i > 0 {
			kUp = 0.5 * (conductivity[i] + conductivity[i-1])
		}
		cap := capacity[i]
		if cap <= 0 {
			cap = 1e6
		}
		alphaUp := kUp / (dz * dz) / cap * secondsPerDay
		alphaDown := kDown / (dz * dz) / cap * secondsPerDay

		if i > 0 {
			a[i] = -alphaUp
		}
		if i+1 < n {
			c[i] = -alphaDown
		}
		b[i] = 1 + alphaUp + alphaDown
		d[i] = t.column.Layers[i].Temperature

		if i == 0 {
			d[i] += alphaUp * surfaceTemperature
			a[i] = 0
		}
		if i == n-1 {
			d[i] += alphaDown * t.BaseTemperature
			c[i] = 0
		}
	}

	x := solveTridiagonalLDL(a, b, c, d)
	for i, l := range t.column.Layers {
		l.Temperature = x[i]
		l.Frozen = l.Temperature <= 0
	}
}

// solveTridiagonalLDL solves A x = d for the symmetric-structure tridiagonal A
// built by solveConduction (sub-diagonal a, diagonal b, super-diagonal c — a[i]
// and c[i-1] are equal in magnitude for this discretisation, so A is symmetric)
// using gonum's Cholesky factorisation (LLᵀ), the same mat package the pack
// uses elsewhere for its dense and vector linear algebra (transport.go's
// convection-dispersion step, output.go's stat helpers).
func solveTridiagonalLDL(a, b, c, d []float64) []float64 {
	n := len(b)
	x := make([]float64, n)
	if n == 0 {
		return x
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, b[i])
		if i+1 < n {
			sym.SetSym(i, i+1, c[i])
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		// A non-positive-definite system means a degenerate layer thickness or
		// conductivity produced a diagonal that isn't dominant enough; fall back
		// to the previous day's temperatures rather than propagate garbage.
		copy(x, d)
		return x
	}

	xVec := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, append([]float64(nil), d...))
	if err := chol.SolveVecTo(xVec, rhs); err != nil {
		copy(x, d)
		return x
	}
	for i := 0; i < n; i++ {
		x[i] = xVec.AtVec(i)
	}
	return x
}
