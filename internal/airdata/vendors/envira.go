package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// EnviraClient reads the Envira IoT device API. Devices are addressed by
// public UUID with no auth; the window travels as epoch-millisecond
// range.from / range.to query parameters and records carry ts in
// milliseconds.
type EnviraClient struct {
	baseURL string
	sensors []airdata.Sensor
	tr      transport
}

func NewEnviraClient(client *http.Client, sensors []airdata.Sensor) *EnviraClient {
	return &EnviraClient{
		baseURL: "https://airlab.enviraiot.es/api/device",
		sensors: sensors,
		tr:      newTransport(client, "envira"),
	}
}

func (c *EnviraClient) Vendor() airdata.Vendor {
	return airdata.VendorEnvira
}

func (c *EnviraClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

func (c *EnviraClient) MaxSpan() time.Duration {
	return 7 * 24 * time.Hour
}

func (c *EnviraClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s/data/pm2.5?range.from=%d&range.to=%d",
			c.baseURL, sensor.ID, win.Start.UnixMilli(), win.End.UnixMilli())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, classifyTransport(err), err)
	}
	defer resp.Body.Close()

	var envelope any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	records, err := airdata.UnwrapRecords(envelope)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	return airdata.FetchResult{Rows: airdata.NormalizeRecords(sensor, records)}, nil
}
