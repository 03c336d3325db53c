package vendors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// CraftedClimateClient pulls telemetry exports as CSV. Auth is an X-API-KEY
// header; the window travels as date-granularity startDate/endDate query
// parameters.
type CraftedClimateClient struct {
	apiKey  string
	baseURL string
	sensors []airdata.Sensor
	tr      transport
}

func NewCraftedClimateClient(client *http.Client, apiKey string, sensors []airdata.Sensor) *CraftedClimateClient {
	return &CraftedClimateClient{
		apiKey:  apiKey,
		baseURL: "https://cctelemetry-dev.azurewebsites.net/pull-data",
		sensors: sensors,
		tr:      newTransport(client, "craftedclimate"),
	}
}

func (c *CraftedClimateClient) Vendor() airdata.Vendor {
	return airdata.VendorCraftedClimate
}

func (c *CraftedClimateClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

// MaxSpan keeps a single export to a month; the endpoint is date-granular.
func (c *CraftedClimateClient) MaxSpan() time.Duration {
	return 30 * 24 * time.Hour
}

func (c *CraftedClimateClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	if c.apiKey == "" {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("crafted climate api key not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s?startDate=%s&endDate=%s",
			c.baseURL, sensor.ID,
			win.Start.UTC().Format("2006-01-02"),
			win.End.UTC().Format("2006-01-02"))
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Accept", "text/csv")
		return req, nil
	}

	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, classifyTransport(err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureNetwork, err)
	}

	records, err := airdata.DecodeCSVRecords(string(body))
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	return airdata.FetchResult{Rows: airdata.NormalizeRecords(sensor, records)}, nil
}
