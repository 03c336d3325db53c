package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// aurassureParams are the parameters requested from every Aurassure thing.
var aurassureParams = []string{"temp", "humid", "pm1", "pm2.5", "no2", "o3", "co"}

// AurassureClient talks to the Aurassure IoT platform. Auth is two custom
// headers (Access-Id / Access-Key); the time window travels in the POST body
// as unix seconds.
type AurassureClient struct {
	accessID  string
	accessKey string
	baseURL   string
	sensors   []airdata.Sensor
	tr        transport
}

func NewAurassureClient(client *http.Client, accessID, accessKey string, sensors []airdata.Sensor) *AurassureClient {
	return &AurassureClient{
		accessID:  accessID,
		accessKey: accessKey,
		baseURL:   "https://app.aurassure.com/-/api/iot-platform/v1.1.0/clients/17067/applications/16/things/data",
		sensors:   sensors,
		tr:        newTransport(client, "aurassure"),
	}
}

func (c *AurassureClient) Vendor() airdata.Vendor {
	return airdata.VendorAurassure
}

func (c *AurassureClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

// MaxSpan limits a single request to a week; the platform has no documented
// cap but the original integration never asked for more than a few days.
func (c *AurassureClient) MaxSpan() time.Duration {
	return 7 * 24 * time.Hour
}

func (c *AurassureClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	if c.accessID == "" || c.accessKey == "" {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("aurassure credentials not configured"))
	}

	var thingID int
	if _, err := fmt.Sscanf(sensor.ID, "%d", &thingID); err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("aurassure sensor id must be numeric: %q", sensor.ID))
	}

	body := map[string]any{
		"data_type":            "raw",
		"aggregation_period":   0,
		"parameters":           aurassureParams,
		"parameter_attributes": []string{},
		"things":               []int{thingID},
		"from_time":            win.Start.Unix(),
		"upto_time":            win.End.Unix(),
		"data_source":          []string{"processed", "callibrated"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Access-Id", c.accessID)
		req.Header.Set("Access-Key", c.accessKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
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
