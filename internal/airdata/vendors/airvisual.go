package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// AirVisualClient reads public IQAir device endpoints. There is no auth and
// no range parameter: the device answers with its full recent history under
// historical.instant, so window filtering happens client-side.
//
// When a cache directory is configured, each valid payload is written to disk
// and served back if a later live call fails or answers an error payload;
// such results are flagged FromCache so an outage is never mistaken for fresh
// data. Error payloads (a 2xx body carrying a "code" field) never reach the
// cache.
type AirVisualClient struct {
	deviceURLs map[string]string
	cacheDir   string
	sensors    []airdata.Sensor
	tr         transport
}

func NewAirVisualClient(client *http.Client, deviceURLs map[string]string, cacheDir string) *AirVisualClient {
	sensors := make([]airdata.Sensor, 0, len(deviceURLs))
	for id := range deviceURLs {
		sensors = append(sensors, airdata.Sensor{
			ID:     id,
			Name:   "AirVisual " + id,
			Vendor: airdata.VendorAirVisual,
		})
	}
	return &AirVisualClient{
		deviceURLs: deviceURLs,
		cacheDir:   cacheDir,
		sensors:    sensors,
		tr:         newTransport(client, "airvisual"),
	}
}

func (c *AirVisualClient) Vendor() airdata.Vendor {
	return airdata.VendorAirVisual
}

func (c *AirVisualClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

// MaxSpan is zero: the device endpoint takes no range parameters.
func (c *AirVisualClient) MaxSpan() time.Duration {
	return 0
}

func (c *AirVisualClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	deviceURL, ok := c.deviceURLs[sensor.ID]
	if !ok {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("unknown airvisual device %q", sensor.ID))
	}

	envelope, kind, liveErr := c.liveEnvelope(ctx, deviceURL)
	fromCache := false
	if liveErr == nil && c.cacheDir != "" {
		// Only payloads that passed the error-code check get cached.
		payload, err := json.Marshal(envelope)
		if err == nil {
			err = os.WriteFile(c.cachePath(sensor.ID), payload, 0o644)
		}
		if err != nil {
			// Cache write failure must not fail a fresh fetch.
			log.Printf("airvisual: failed to cache payload for %s: %v", sensor.ID, err)
		}
	}
	if liveErr != nil {
		cached, err := c.readCache(sensor.ID)
		if err != nil {
			// No cached payload to fall back on; report the live failure.
			return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, kind, liveErr)
		}
		envelope = cached
		fromCache = true
	}

	records, err := airdata.UnwrapRecords(envelope)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	rows := airdata.NormalizeRecords(sensor, records)
	if !win.Start.IsZero() || !win.End.IsZero() {
		rows = filterWindow(rows, win)
	}
	return airdata.FetchResult{Rows: rows, FromCache: fromCache}, nil
}

// liveEnvelope fetches and decodes the device payload. A 2xx body carrying a
// "code" field is the device's error shape and counts as a failed live call.
func (c *AirVisualClient) liveEnvelope(ctx context.Context, deviceURL string) (any, airdata.FailureKind, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, deviceURL, nil)
	}
	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return nil, classifyTransport(err), err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, airdata.FailureNetwork, err
	}

	var envelope any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, airdata.FailureParse, err
	}
	if m, ok := envelope.(map[string]any); ok {
		if code, present := m["code"]; present {
			return nil, airdata.FailureVendor, fmt.Errorf("airvisual error payload: %v", code)
		}
	}
	return envelope, "", nil
}

func (c *AirVisualClient) readCache(sensorID string) (any, error) {
	if c.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	payload, err := os.ReadFile(c.cachePath(sensorID))
	if err != nil {
		return nil, err
	}
	var envelope any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

func (c *AirVisualClient) cachePath(sensorID string) string {
	return filepath.Join(c.cacheDir, sensorID+".json")
}

func filterWindow(rows []airdata.Row, win airdata.Window) []airdata.Row {
	out := rows[:0]
	for _, r := range rows {
		if r.Timestamp.IsZero() || win.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}
