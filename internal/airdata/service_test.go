package airdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers fetches from a script keyed by sensor id and window
// start, and records the order calls completed in.
type fakeClient struct {
	vendor  Vendor
	maxSpan time.Duration
	sensors []Sensor

	mu    sync.Mutex
	calls int

	// fail decides per call whether to error.
	fail func(sensor Sensor, win Window) error
	// delay slows selected calls down so completion order differs from
	// dispatch order.
	delay func(sensor Sensor, win Window) time.Duration
}

func (f *fakeClient) Vendor() Vendor                            { return f.vendor }
func (f *fakeClient) Sensors(context.Context) ([]Sensor, error) { return f.sensors, nil }
func (f *fakeClient) MaxSpan() time.Duration                    { return f.maxSpan }

func (f *fakeClient) Fetch(ctx context.Context, sensor Sensor, win Window) (FetchResult, error) {
	if f.delay != nil {
		time.Sleep(f.delay(sensor, win))
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(sensor, win); err != nil {
			return FetchResult{}, NewFetchError(f.vendor, sensor.ID, win, FailureNetwork, err)
		}
	}
	return FetchResult{Rows: []Row{{
		SensorID:  sensor.ID,
		Timestamp: win.Start,
		Fields:    map[string]any{"pm2.5": 10.0},
	}}}, nil
}

func TestFetchAllPartialFailure(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * 24 * time.Hour)
	sensor := Sensor{ID: "s1", Vendor: VendorAirGradient}

	// Five 24h sub-windows; the third one always fails.
	failing := start.Add(2 * 24 * time.Hour)
	client := &fakeClient{
		vendor:  VendorAirGradient,
		maxSpan: 24 * time.Hour,
		sensors: []Sensor{sensor},
		fail: func(_ Sensor, win Window) error {
			if win.Start.Equal(failing) {
				return errors.New("connection reset")
			}
			return nil
		},
	}

	svc := NewService([]Client{client}, 2)
	report := svc.FetchAll(context.Background(), client, []Sensor{sensor}, Window{Start: start, End: end})

	res := report.Results["s1"]
	require.NotNil(t, res)

	// Four successful windows' rows, one recorded failure, nothing raised.
	assert.Len(t, res.Rows, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, FailureNetwork, res.Failures[0].Kind)
	assert.True(t, res.Failures[0].Window.Start.Equal(failing))
	assert.Len(t, report.Failures, 1)
}

func TestFetchAllChronologicalOrderDespiteCompletion(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * 24 * time.Hour)
	sensor := Sensor{ID: "s1", Vendor: VendorAirGradient}

	// Earlier windows finish last.
	client := &fakeClient{
		vendor:  VendorAirGradient,
		maxSpan: 24 * time.Hour,
		sensors: []Sensor{sensor},
		delay: func(_ Sensor, win Window) time.Duration {
			daysUntilEnd := end.Sub(win.Start) / (24 * time.Hour)
			return time.Duration(daysUntilEnd) * 10 * time.Millisecond
		},
	}

	svc := NewService([]Client{client}, 4)
	report := svc.FetchAll(context.Background(), client, []Sensor{sensor}, Window{Start: start, End: end})

	res := report.Results["s1"]
	require.Len(t, res.Rows, 4)
	for i := 1; i < len(res.Rows); i++ {
		assert.True(t, res.Rows[i-1].Timestamp.Before(res.Rows[i].Timestamp),
			"rows must concatenate in window order, not completion order")
	}
}

func TestFetchAllSensorIsolation(t *testing.T) {
	win := Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	sensorA := Sensor{ID: "a", Vendor: VendorEnvira}
	sensorB := Sensor{ID: "b", Vendor: VendorEnvira}

	client := &fakeClient{
		vendor:  VendorEnvira,
		maxSpan: 48 * time.Hour,
		sensors: []Sensor{sensorA, sensorB},
		fail: func(sensor Sensor, _ Window) error {
			if sensor.ID == "a" {
				return errors.New("always down")
			}
			return nil
		},
	}

	svc := NewService([]Client{client}, 2)
	report := svc.FetchAll(context.Background(), client, []Sensor{sensorA, sensorB}, win)

	// A's failure has no effect on B's outcome.
	assert.Empty(t, report.Results["a"].Rows)
	assert.Len(t, report.Results["a"].Failures, 1)
	assert.Len(t, report.Results["b"].Rows, 1)
	assert.Empty(t, report.Results["b"].Failures)
}

func TestFetchAllBoundedWorkerPool(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sensor := Sensor{ID: "s1", Vendor: VendorAirGradient}

	client := &fakeClient{
		vendor:  VendorAirGradient,
		maxSpan: time.Hour,
		sensors: []Sensor{sensor},
	}

	svc := NewService([]Client{client}, 3)
	report := svc.FetchAll(context.Background(), client, []Sensor{sensor},
		Window{Start: start, End: start.Add(10 * time.Hour)})

	assert.Len(t, report.Results["s1"].Rows, 10)
	assert.Equal(t, 10, client.calls)
}

func TestCombinedSortsAcrossSensors(t *testing.T) {
	report := &FetchReport{Results: map[string]*SensorResult{
		"a": {Rows: []Row{{SensorID: "a", Timestamp: time.Unix(200, 0).UTC()}}},
		"b": {Rows: []Row{{SensorID: "b", Timestamp: time.Unix(100, 0).UTC()}}},
	}}

	combined := report.Combined()
	require.Len(t, combined.Rows, 2)
	assert.Equal(t, "b", combined.Rows[0].SensorID)
}
