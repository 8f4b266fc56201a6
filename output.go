package monica

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/stat"
)

// AggregationOp names an over-layers/over-time reduction applied to an extracted
// output value (§6 "Outputs per day"), mirroring the teacher's aggregation-by-name
// dispatch in io.go's `Results`.
type AggregationOp string

const (
	AggSum    AggregationOp = "SUM"
	AggAvg    AggregationOp = "AVG"
	AggMedian AggregationOp = "MEDIAN"
	AggMin    AggregationOp = "MIN"
	AggMax    AggregationOp = "MAX"
	AggFirst  AggregationOp = "FIRST"
	AggLast   AggregationOp = "LAST"
	AggNone   AggregationOp = "NONE"
)

// OutputValueKind tags which field of OutputValue is populated — a closed tagged
// variant in place of the teacher's `interface{}`-typed extraction results (§9
// redesign note: polymorphic extractor table becomes a closed tagged variant).
type OutputValueKind int

const (
	OutputKindNum OutputValueKind = iota
	OutputKindInt
	OutputKindText
	OutputKindNums
)

// OutputValue is one extracted, possibly-aggregated output cell.
type OutputValue struct {
	Kind OutputValueKind
	Num  float64
	Int  int
	Text string
	Nums []float64
}

func (v OutputValue) asFloat() float64 {
	switch v.Kind {
	case OutputKindNum:
		return v.Num
	case OutputKindInt:
		return float64(v.Int)
	default:
		return 0
	}
}

// OutputExtractor pulls a raw (possibly per-layer) value out of an
// ObservationRecord. Per-layer extractors return OutputKindNums; scalar
// extractors return OutputKindNum/Int/Text directly.
type OutputExtractor func(rec ObservationRecord) OutputValue

// OutputDescriptor is one row of the output-id table (§6): an id maps to a name,
// unit, extraction function, aggregation operator and rounding.
type OutputDescriptor struct {
	ID          string
	Name        string
	Unit        string
	Extract     OutputExtractor
	Aggregation AggregationOp
	Round       int // decimal places; -1 means "no rounding"
	Expression  string // non-empty for derived/composite outputs, evaluated via govaluate
}

// OutputRegistry is the id -> descriptor table, grounded on the teacher's
// `Outputter`/`OutputOptions` machinery in io.go.
type OutputRegistry struct {
	descriptors map[string]OutputDescriptor
	functions   map[string]govaluate.ExpressionFunction
}

// NewOutputRegistry returns a registry pre-populated with the built-in state
// variables and the default govaluate functions (sum/avg/median), the same
// defaults the teacher wires into NewOutputter.
func NewOutputRegistry() *OutputRegistry {
	r := &OutputRegistry{
		descriptors: map[string]OutputDescriptor{},
		functions: map[string]govaluate.ExpressionFunction{
			"sum": func(args ...interface{}) (interface{}, error) {
				return sumArg(args)
			},
			"avg": func(args ...interface{}) (interface{}, error) {
				xs, err := floatSliceArg(args)
				if err != nil {
					return nil, err
				}
				return stat.Mean(xs, nil), nil
			},
			"median": func(args ...interface{}) (interface{}, error) {
				xs, err := floatSliceArg(args)
				if err != nil {
					return nil, err
				}
				return medianOf(xs), nil
			},
		},
	}
	r.registerBuiltins()
	return r
}

func sumArg(args []interface{}) (interface{}, error) {
	xs, err := floatSliceArg(args)
	if err != nil {
		return nil, err
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s, nil
}

func floatSliceArg(args []interface{}) ([]float64, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("monica: expected 1 argument, got %d", len(args))
	}
	xs, ok := args[0].([]float64)
	if !ok {
		return nil, fmt.Errorf("monica: argument is not a number slice")
	}
	return xs, nil
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// registerBuiltins wires the output ids named across §3/§4/§6: surface
// temperature, per-layer NO3/NH4/moisture/temperature, crop LAI and yield, and
// the diagnostic status. The cumulative season totals are not registered.
func (r *OutputRegistry) registerBuiltins() {
	layerExtractor := func(get func(*SoilLayer) float64) OutputExtractor {
		return func(rec ObservationRecord) OutputValue {
			vals := make([]float64, len(rec.Column.Layers))
			for i, l := range rec.Column.Layers {
				vals[i] = get(l)
			}
			return OutputValue{Kind: OutputKindNums, Nums: vals}
		}
	}

	r.descriptors["surface_temperature"] = OutputDescriptor{
		ID: "surface_temperature", Name: "Surface temperature", Unit: "degC",
		Extract:     func(rec ObservationRecord) OutputValue { return OutputValue{Kind: OutputKindNum, Num: rec.SurfaceTemperature} },
		Aggregation: AggNone, Round: 2,
	}
	r.descriptors["no3"] = OutputDescriptor{
		ID: "no3", Name: "Soil nitrate", Unit: "kg N/m3",
		Extract: layerExtractor(func(l *SoilLayer) float64 { return l.NO3 }), Aggregation: AggSum, Round: 4,
	}
	r.descriptors["nh4"] = OutputDescriptor{
		ID: "nh4", Name: "Soil ammonium", Unit: "kg N/m3",
		Extract: layerExtractor(func(l *SoilLayer) float64 { return l.NH4 }), Aggregation: AggSum, Round: 4,
	}
	r.descriptors["moisture"] = OutputDescriptor{
		ID: "moisture", Name: "Layer moisture", Unit: "m3/m3",
		Extract: layerExtractor(func(l *SoilLayer) float64 { return l.Moisture }), Aggregation: AggAvg, Round: 3,
	}
	r.descriptors["temperature"] = OutputDescriptor{
		ID: "temperature", Name: "Layer temperature", Unit: "degC",
		Extract: layerExtractor(func(l *SoilLayer) float64 { return l.Temperature }), Aggregation: AggAvg, Round: 2,
	}
	r.descriptors["lai"] = OutputDescriptor{
		ID: "lai", Name: "Leaf area index", Unit: "m2/m2",
		Extract: func(rec ObservationRecord) OutputValue {
			if rec.Crop == nil {
				return OutputValue{Kind: OutputKindNum, Num: 0}
			}
			return OutputValue{Kind: OutputKindNum, Num: rec.Crop.LAI}
		},
		Aggregation: AggNone, Round: 3,
	}
	r.descriptors["yield"] = OutputDescriptor{
		ID: "yield", Name: "Crop yield", Unit: "kg DM/m2",
		Extract: func(rec ObservationRecord) OutputValue {
			if rec.Crop == nil {
				return OutputValue{Kind: OutputKindNum, Num: 0}
			}
			return OutputValue{Kind: OutputKindNum, Num: rec.Crop.Yield}
		},
		Aggregation: AggNone, Round: 4,
	}
	r.descriptors["status"] = OutputDescriptor{
		ID: "status", Name: "Diagnostic status", Unit: "",
		Extract: func(rec ObservationRecord) OutputValue {
			if len(rec.Diagnostics) == 0 {
				return OutputValue{Kind: OutputKindText, Text: "ok"}
			}
			return OutputValue{Kind: OutputKindText, Text: rec.Diagnostics[len(rec.Diagnostics)-1].Kind.String()}
		},
		Aggregation: AggNone, Round: -1,
	}
}

// RegisterDerived adds a composite output id whose value is a govaluate
// expression over other registered ids' aggregated values, e.g.
// "no3 + nh4" (§4.7: "derived/composite output expressions").
func (r *OutputRegistry) RegisterDerived(id, name, unit, expression string, round int) error {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, r.functions)
	if err != nil {
		return fmt.Errorf("monica: invalid output expression %q: %w", expression, err)
	}
	r.descriptors[id] = OutputDescriptor{
		ID: id, Name: name, Unit: unit, Aggregation: AggNone, Round: round,
		Expression: expression,
		Extract: func(rec ObservationRecord) OutputValue {
			parameters := make(map[string]interface{}, len(r.descriptors))
			for otherID, d := range r.descriptors {
				if d.Expression != "" || otherID == id {
					continue
				}
				parameters[otherID] = aggregate(d.Extract(rec), d.Aggregation)
			}
			result, err := expr.Evaluate(parameters)
			if err != nil {
				return OutputValue{Kind: OutputKindNum, Num: 0}
			}
			if f, ok := result.(float64); ok {
				return OutputValue{Kind: OutputKindNum, Num: f}
			}
			return OutputValue{Kind: OutputKindNum, Num: 0}
		},
	}
	return nil
}

// aggregate reduces a possibly per-layer OutputValue to a scalar by the
// requested operator (§6 "Aggregation operators").
func aggregate(v OutputValue, op AggregationOp) float64 {
	if v.Kind != OutputKindNums {
		return v.asFloat()
	}
	xs := v.Nums
	if len(xs) == 0 {
		return 0
	}
	switch op {
	case AggSum:
		s := 0.0
		for _, x := range xs {
			s += x
		}
		return s
	case AggAvg:
		return stat.Mean(xs, nil)
	case AggMedian:
		return medianOf(xs)
	case AggMin:
		m := xs[0]
		for _, x := range xs[1:] {
			if x < m {
				m = x
			}
		}
		return m
	case AggMax:
		m := xs[0]
		for _, x := range xs[1:] {
			if x > m {
				m = x
			}
		}
		return m
	case AggFirst:
		return xs[0]
	case AggLast:
		return xs[len(xs)-1]
	default:
		return xs[0]
	}
}

// WriteCSV writes one row per observation for the given output ids, in order, to
// w (§6 CLI surface: "producing a CSV ... time series").
func (r *OutputRegistry) WriteCSV(w io.Writer, observations []ObservationRecord, ids []string) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := append([]string{"year", "month", "day"}, ids...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range observations {
		row := []string{fmt.Sprint(rec.Year), fmt.Sprint(rec.Month), fmt.Sprint(rec.Day)}
		for _, id := range ids {
			d, ok := r.descriptors[id]
			if !ok {
				row = append(row, "")
				continue
			}
			v := d.Extract(rec)
			if v.Kind == OutputKindText {
				row = append(row, v.Text)
				continue
			}
			scalar := aggregate(v, d.Aggregation)
			row = append(row, roundedString(scalar, d.Round))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func roundedString(v float64, places int) string {
	if places < 0 {
		return fmt.Sprintf("%v", v)
	}
	format := fmt.Sprintf("%%.%df", places)
	return fmt.Sprintf(format, v)
}

// jsonRow is one JSON-serialised observation (§6 CLI surface: "producing ... a
// JSON time series").
type jsonRow struct {
	Year   int                    `json:"year"`
	Month  int                    `json:"month"`
	Day    int                    `json:"day"`
	Values map[string]interface{} `json:"values"`
}

// WriteJSON writes the full observation series as a JSON array to w.
func (r *OutputRegistry) WriteJSON(w io.Writer, observations []ObservationRecord, ids []string) error {
	rows := make([]jsonRow, 0, len(observations))
	for _, rec := range observations {
		values := make(map[string]interface{}, len(ids))
		for _, id := range ids {
			d, ok := r.descriptors[id]
			if !ok {
				continue
			}
			v := d.Extract(rec)
			if v.Kind == OutputKindText {
				values[id] = v.Text
				continue
			}
			values[id] = aggregate(v, d.Aggregation)
		}
		rows = append(rows, jsonRow{Year: rec.Year, Month: rec.Month, Day: rec.Day, Values: values})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// IDs returns every registered output id, sorted for stable display.
func (r *OutputRegistry) IDs() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
