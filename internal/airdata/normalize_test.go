package airdata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name string
		in   any
		want time.Time
	}{
		{"unix seconds", float64(want.Unix()), want},
		{"unix millis", float64(want.UnixMilli()), want},
		{"unix seconds string", "1735786685", time.Unix(1735786685, 0).UTC()},
		{"iso with Z", "2025-01-02T03:04:05Z", want},
		{"iso fractional", "2025-01-02T03:04:05.250Z", want.Add(250 * time.Millisecond)},
		{"iso no zone", "2025-01-02T03:04:05", want},
		{"space separated", "2025-01-02 03:04:05", want},
		{"date only", "2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, ok := ParseTimestamp(tc.in)
			require.True(t, ok)
			assert.True(t, ts.Equal(tc.want), "got %s want %s", ts, tc.want)
		})
	}

	_, ok := ParseTimestamp("not a time")
	assert.False(t, ok)
	_, ok = ParseTimestamp(nil)
	assert.False(t, ok)
}

func TestUnwrapRecordsEnvelopes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"bare array", `[{"pm02": 5}, {"pm02": 6}]`, 2},
		{"data envelope", `{"data": [{"pm02": 5}]}`, 1},
		{"results envelope", `{"results": [{"pm02": 5}]}`, 1},
		{"measurements envelope", `{"measurements": [{"pm02": 5}]}`, 1},
		{"historical instant", `{"historical": {"instant": [{"tp": 30.1}]}}`, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload any
			require.NoError(t, json.Unmarshal([]byte(tc.payload), &payload))

			records, err := UnwrapRecords(payload)
			require.NoError(t, err)
			assert.Len(t, records, tc.want)
		})
	}
}

func TestUnwrapRecordsUnknownEnvelope(t *testing.T) {
	_, err := UnwrapRecords(map[string]any{"stuff": 1})
	assert.Error(t, err)

	_, err = UnwrapRecords("just a string")
	assert.Error(t, err)
}

func TestFlattenFields(t *testing.T) {
	flat := FlattenFields(map[string]any{
		"tp": 30.2,
		"pm25": map[string]any{
			"aqius": 57.0,
			"conc":  15.2,
		},
	})

	assert.Equal(t, 30.2, flat["tp"])
	assert.Equal(t, 57.0, flat["pm25_aqius"])
	assert.Equal(t, 15.2, flat["pm25_conc"])
	_, nested := flat["pm25"]
	assert.False(t, nested)
}

func TestNormalizeRecords(t *testing.T) {
	sensor := Sensor{ID: "170379", Name: "AirGradient Sensor 1", Vendor: VendorAirGradient}
	records := []map[string]any{
		{"timestamp": "2025-01-01T10:00:00Z", "pm02": 12.5},
		{"pm02": 13.0}, // no timestamp at all
	}

	rows := NormalizeRecords(sensor, records)
	require.Len(t, rows, 2)

	assert.Equal(t, "170379", rows[0].SensorID)
	assert.Equal(t, "AirGradient Sensor 1", rows[0].SensorName)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), rows[0].Timestamp)
	// The matched timestamp key is lifted out of the fields.
	_, present := rows[0].Fields["timestamp"]
	assert.False(t, present)
	assert.Equal(t, 12.5, rows[0].Fields["pm02"])

	// Absent timestamp stays absent, not zero-coerced into the fields.
	assert.True(t, rows[1].Timestamp.IsZero())
	_, present = rows[1].Fields["timestamp"]
	assert.False(t, present)
}

func TestDecodeCSVRecords(t *testing.T) {
	csvText := "timestamp,pm2.5,site\n2025-01-01T00:00:00Z,12.5,accra\n2025-01-01T00:01:00Z,,accra\n"

	records, err := DecodeCSVRecords(csvText)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 12.5, records[0]["pm2.5"])
	assert.Equal(t, "accra", records[0]["site"])

	// Empty cell is absent, never a sentinel value.
	_, present := records[1]["pm2.5"]
	assert.False(t, present)
}

// TestDecodeCSVRecordsPreservesNumericLookingText pins the coercion rule:
// only cells whose canonical float formatting reproduces the text become
// numbers, so ids and codes survive an encode/decode round-trip unchanged.
func TestDecodeCSVRecordsPreservesNumericLookingText(t *testing.T) {
	csvText := "plain,padded,exponent,trailing\n12.5,007,1e5,12.50\n"

	records, err := DecodeCSVRecords(csvText)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 12.5, records[0]["plain"])
	assert.Equal(t, "007", records[0]["padded"])
	assert.Equal(t, "1e5", records[0]["exponent"])
	assert.Equal(t, "12.50", records[0]["trailing"])
}

func TestRowSetColumnsAndRecords(t *testing.T) {
	rs := &RowSet{Rows: []Row{
		{SensorID: "a", SensorName: "A", Timestamp: time.Unix(100, 0).UTC(), Fields: map[string]any{"pm2.5": 1.0}},
		{SensorID: "b", Fields: map[string]any{"temp": 30.0}},
	}}

	cols := rs.Columns()
	assert.Equal(t, []string{"sensor_id", "sensor_name", "timestamp", "pm2.5", "temp"}, cols)

	recs := rs.Records()
	require.Len(t, recs, 2)
	_, present := recs[1]["timestamp"]
	assert.False(t, present)
	_, present = recs[1]["pm2.5"]
	assert.False(t, present)
}
