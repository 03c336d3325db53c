package vendors

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// NeboClient reads per-minute readings from the Nebo sensors API. Auth is a
// static token header plus a signed hash derived from the shared code and the
// current unix time, sent as query parameters.
type NeboClient struct {
	token   string
	code    string
	baseURL string
	sensors []airdata.Sensor
	tr      transport

	// now is swappable for tests of the signed-hash parameters.
	now func() time.Time
}

func NewNeboClient(client *http.Client, token, code string, sensors []airdata.Sensor) *NeboClient {
	return &NeboClient{
		token:   token,
		code:    code,
		baseURL: "https://nebo.live/api/v2/sensors",
		sensors: sensors,
		tr:      newTransport(client, "nebo"),
		now:     time.Now,
	}
}

func (c *NeboClient) Vendor() airdata.Vendor {
	return airdata.VendorNebo
}

func (c *NeboClient) Sensors(_ context.Context) ([]airdata.Sensor, error) {
	return c.sensors, nil
}

// MaxSpan is zero: the minute endpoint always returns the latest batch and
// takes no window.
func (c *NeboClient) MaxSpan() time.Duration {
	return 0
}

// authParams derives the signed query parameters: the sha1 of the current
// unix time concatenated with the shared code, of which characters 5..16 of
// the hex digest form the hash.
func (c *NeboClient) authParams() (int64, string) {
	now := c.now().Unix()
	digest := sha1.Sum([]byte(fmt.Sprintf("%d%s", now, c.code)))
	return now, hex.EncodeToString(digest[:])[5:16]
}

func (c *NeboClient) Fetch(ctx context.Context, sensor airdata.Sensor, win airdata.Window) (airdata.FetchResult, error) {
	if c.token == "" || c.code == "" {
		return airdata.FetchResult{}, airdata.NewFetchError(c.Vendor(), sensor.ID, win,
			airdata.FailureConfig, fmt.Errorf("nebo credentials not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		now, hash := c.authParams()
		values := url.Values{}
		values.Set("time", fmt.Sprint(now))
		values.Set("hash", hash)

		u := fmt.Sprintf("%s/%s/minute?%s", c.baseURL, sensor.ID, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Auth-Nebo", c.token)
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
