package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// airGradientMaxSpan is the documented per-request cap of the
// measures/past endpoint.
const airGradientMaxSpan = 48 * time.Hour

// AirGradientClient fetches past measures per location. The API token
// travels as a query-string parameter; windows are ISO-8601 with a Z suffix.
type AirGradientClient struct {
	token   string
	baseURL string
	sensors []airdata.Sensor
	tr      transport
}

func NewAirGradientClient(client *http.Client, token string, sensors []airdata.Sensor) *AirGradientClient {
	return &AirGradientClient{
		token:   token,
		baseURL: "https://api.airgradient.com/public/api/v1/locations",
		sensors: sensors,
		tr:      newTransport(client, "airgradient"),
	}
}

func (c *AirGradientClient) Vendor() airdata.Vendor {
	return airdata.VendorAirGradient
}

func (c *AirGradientClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

func (c *AirGradientClient) MaxSpan() time.Duration {
	return airGradientMaxSpan
}

func (c *AirGradientClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	if c.token == "" {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("airgradient token not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("from", win.Start.UTC().Format("2006-01-02T15:04:05Z"))
		values.Set("to", win.End.UTC().Format("2006-01-02T15:04:05Z"))
		values.Set("token", c.token)

		u := fmt.Sprintf("%s/%s/measures/past?%s", c.baseURL, sensor.ID, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, classifyTransport(err), err)
	}
	defer resp.Body.Close()

	// The endpoint answers with either a bare array or a data envelope.
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
