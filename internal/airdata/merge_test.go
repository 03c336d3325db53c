package airdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowAt(ts time.Time, value float64) Row {
	return Row{
		SensorID:  "s1",
		Timestamp: ts,
		Fields:    map[string]any{"pm2.5": value},
	}
}

func TestMergeNoExistingArchive(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	incoming := &RowSet{Rows: []Row{rowAt(base.Add(time.Minute), 2), rowAt(base, 1)}}

	merged := Merge(nil, incoming)

	require.Len(t, merged.Rows, 2)
	// Result is re-sorted ascending regardless of incoming order.
	assert.True(t, merged.Rows[0].Timestamp.Equal(base))
	assert.True(t, merged.Rows[1].Timestamp.Equal(base.Add(time.Minute)))
}

func TestMergeIdempotence(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &RowSet{Rows: []Row{rowAt(base, 1), rowAt(base.Add(time.Minute), 2)}}

	// merge(A, {}) = A.
	merged := Merge(a, &RowSet{})
	assert.Len(t, merged.Rows, 2)

	// merge(A, A) = A: re-ingesting identical data adds nothing.
	merged = Merge(a, a)
	assert.Len(t, merged.Rows, 2)
}

func TestMergeKeepFirst(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &RowSet{Rows: []Row{rowAt(ts, 1)}}
	incoming := &RowSet{Rows: []Row{rowAt(ts, 2)}}

	merged := Merge(existing, incoming)

	require.Len(t, merged.Rows, 1)
	// The previously archived row wins; a later duplicate fetch for the
	// same instant never overwrites history.
	assert.Equal(t, 1.0, merged.Rows[0].Fields["pm2.5"])
}

func TestMergeWithoutTimestampDedupsByRowIdentity(t *testing.T) {
	r1 := Row{SensorID: "s1", Fields: map[string]any{"pm2.5": 5.0}}
	r2 := Row{SensorID: "s1", Fields: map[string]any{"pm2.5": 5.0}}
	r3 := Row{SensorID: "s1", Fields: map[string]any{"pm2.5": 7.0}}

	merged := Merge(&RowSet{Rows: []Row{r1}}, &RowSet{Rows: []Row{r2, r3}})
	assert.Len(t, merged.Rows, 2)
}

func TestMergeInterleavesAndSorts(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &RowSet{Rows: []Row{rowAt(base, 1), rowAt(base.Add(2*time.Minute), 3)}}
	incoming := &RowSet{Rows: []Row{rowAt(base.Add(3*time.Minute), 4), rowAt(base.Add(time.Minute), 2)}}

	merged := Merge(existing, incoming)

	require.Len(t, merged.Rows, 4)
	for i := 1; i < len(merged.Rows); i++ {
		assert.True(t, merged.Rows[i-1].Timestamp.Before(merged.Rows[i].Timestamp))
	}
}
