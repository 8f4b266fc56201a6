package monica

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testObservation(col *SoilColumn) ObservationRecord {
	return ObservationRecord{
		Year: 2020, Month: 3, Day: 15,
		Column:             col,
		SurfaceTemperature: 12.345,
	}
}

func TestOutputRegistryAggregatesNO3Sum(t *testing.T) {
	col, _ := testColumn(t, 3)
	col.Layers[0].NO3 = 0.01
	col.Layers[1].NO3 = 0.02
	col.Layers[2].NO3 = 0.03

	r := NewOutputRegistry()
	d := r.descriptors["no3"]
	v := d.Extract(testObservation(col))
	require.InDelta(t, 0.06, aggregate(v, d.Aggregation), 1e-9)
}

func TestOutputRegistryWriteCSVRoundsByDescriptor(t *testing.T) {
	col, _ := testColumn(t, 2)
	r := NewOutputRegistry()
	var buf bytes.Buffer
	err := r.WriteCSV(&buf, []ObservationRecord{testObservation(col)}, []string{"surface_temperature"})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "12.35") // Round: 2 on surface_temperature
	require.True(t, strings.HasPrefix(out, "year,month,day,surface_temperature"))
}

func TestOutputRegistryWriteJSONEncodesValues(t *testing.T) {
	col, _ := testColumn(t, 2)
	r := NewOutputRegistry()
	var buf bytes.Buffer
	err := r.WriteJSON(&buf, []ObservationRecord{testObservation(col)}, []string{"surface_temperature"})
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	values := rows[0]["values"].(map[string]interface{})
	require.InDelta(t, 12.345, values["surface_temperature"], 1e-6)
}

func TestOutputRegistryRegisterDerivedExpression(t *testing.T) {
	col, _ := testColumn(t, 2)
	col.Layers[0].NO3 = 0.01
	col.Layers[0].NH4 = 0.02
	col.Layers[1].NO3 = 0.01
	col.Layers[1].NH4 = 0.02

	r := NewOutputRegistry()
	require.NoError(t, r.RegisterDerived("total_mineral_n", "Total mineral N", "kg N/m3", "no3 + nh4", 4))

	d := r.descriptors["total_mineral_n"]
	v := d.Extract(testObservation(col))
	require.InDelta(t, 0.06, v.Num, 1e-9)
}

func TestOutputRegistryUnknownIDWritesEmptyCell(t *testing.T) {
	col, _ := testColumn(t, 1)
	r := NewOutputRegistry()
	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf, []ObservationRecord{testObservation(col)}, []string{"does-not-exist"}))
	require.Contains(t, buf.String(), "year,month,day,does-not-exist")
}
