package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

func TestEncodeCSVSharedColumnsFirst(t *testing.T) {
	rs := &airdata.RowSet{Rows: []airdata.Row{
		{
			SensorID:   "s1",
			SensorName: "Sensor 1",
			Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Fields:     map[string]any{"pm2.5": 12.5, "site": "accra"},
		},
		{
			SensorID: "s1",
			Fields:   map[string]any{"pm2.5": 13.0},
		},
	}}

	content, err := EncodeCSV(rs)
	require.NoError(t, err)

	decoded, err := DecodeCSV(content)
	require.NoError(t, err)
	require.Len(t, decoded.Rows, 2)

	assert.Equal(t, "s1", decoded.Rows[0].SensorID)
	assert.Equal(t, "Sensor 1", decoded.Rows[0].SensorName)
	assert.True(t, decoded.Rows[0].Timestamp.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12.5, decoded.Rows[0].Fields["pm2.5"])
	assert.Equal(t, "accra", decoded.Rows[0].Fields["site"])

	// The second row's empty cells stay absent after the round trip.
	assert.True(t, decoded.Rows[1].Timestamp.IsZero())
	_, present := decoded.Rows[1].Fields["site"]
	assert.False(t, present)
}

func TestFSStoreOverwriteIsComplete(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Upload("x_history.csv", []byte("a,b\n1,2\n")))
	require.NoError(t, store.Upload("x_history.csv", []byte("a,b\n3,4\n")))

	content, err := store.Download("x_history.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n3,4\n", string(content))

	_, err = store.Download("missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}
