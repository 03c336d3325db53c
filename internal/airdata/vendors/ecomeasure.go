package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

const (
	// ecomeasurePageLimit is the page size used for limit/offset pagination.
	ecomeasurePageLimit = 1000
	// ecomeasureMaxDirectoryIDs is the sensor directory's per-request cap.
	ecomeasureMaxDirectoryIDs = 10
)

// EcomeasureClient fetches per-sensor measurements with TOKEN-scheme
// authorization and limit/offset pagination inside each window. The group
// directory endpoint resolves sensor display names.
type EcomeasureClient struct {
	token     string
	baseURL   string
	sensorIDs []string
	tr        transport
}

func NewEcomeasureClient(client *http.Client, token string, sensorIDs []string) *EcomeasureClient {
	return &EcomeasureClient{
		token:     token,
		baseURL:   "https://airlab-ws.i-comesure.com/api",
		sensorIDs: sensorIDs,
		tr:        newTransport(client, "ecomeasure"),
	}
}

func (c *EcomeasureClient) Vendor() airdata.Vendor {
	return airdata.VendorEcomeasure
}

// Sensors resolves display names through the group directory endpoint,
// falling back to the configured ids when the call fails.
func (c *EcomeasureClient) Sensors(ctx context.Context) ([]airdata.Sensor, error) {
	fallback := make([]airdata.Sensor, 0, len(c.sensorIDs))
	for _, id := range c.sensorIDs {
		fallback = append(fallback, airdata.Sensor{
			ID:     id,
			Name:   "Ecomeasure Sensor " + id,
			Vendor: airdata.VendorEcomeasure,
		})
	}

	ids := c.sensorIDs
	if len(ids) > ecomeasureMaxDirectoryIDs {
		ids = ids[:ecomeasureMaxDirectoryIDs]
	}
	if len(ids) == 0 {
		return fallback, nil
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/group/sensors/%s", c.baseURL, strings.Join(ids, ","))
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "TOKEN "+c.token)
		return req, nil
	}

	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return fallback, nil
	}
	defer resp.Body.Close()

	var directory []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&directory); err != nil {
		return fallback, nil
	}

	sensors := make([]airdata.Sensor, 0, len(directory))
	for _, entry := range directory {
		name := entry.Name
		if name == "" {
			name = "Ecomeasure Sensor " + entry.ID.String()
		}
		sensors = append(sensors, airdata.Sensor{
			ID:     entry.ID.String(),
			Name:   name,
			Vendor: airdata.VendorEcomeasure,
		})
	}
	if len(sensors) == 0 {
		return fallback, nil
	}
	return sensors, nil
}

func (c *EcomeasureClient) MaxSpan() time.Duration {
	return 24 * time.Hour
}

func (c *EcomeasureClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	if c.token == "" {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("ecomeasure token not configured"))
	}

	var rows []airdata.Row
	for offset := 0; ; offset += ecomeasurePageLimit {
		page, err := c.fetchPage(ctx, sensor, win, offset)
		if err != nil {
			return airdata.FetchResult{}, err
		}
		rows = append(rows, page...)
		if len(page) < ecomeasurePageLimit {
			break
		}
	}
	return airdata.FetchResult{Rows: rows}, nil
}

func (c *EcomeasureClient) fetchPage(ctx context.Context, sensor airdata.Sensor, win airdata.Window, offset int) ([]airdata.Row, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("start", win.Start.UTC().Format("2006-01-02T15:04:05Z"))
		values.Set("end", win.End.UTC().Format("2006-01-02T15:04:05Z"))
		values.Set("unit", "false")
		values.Set("limit", fmt.Sprint(ecomeasurePageLimit))
		values.Set("offset", fmt.Sprint(offset))

		u := fmt.Sprintf("%s/sensors/%s/measurements/?%s", c.baseURL, sensor.ID, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "TOKEN "+c.token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := c.tr.do(ctx, buildRequest)
	if err != nil {
		return nil, airdata.NewFetchError(c.Vendor(), sensor.ID, win, classifyTransport(err), err)
	}
	defer resp.Body.Close()

	var envelope any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}

	records, err := airdata.UnwrapRecords(envelope)
	if err != nil {
		return nil, airdata.NewFetchError(c.Vendor(), sensor.ID, win, airdata.FailureParse, err)
	}
	return airdata.NormalizeRecords(sensor, records), nil
}
