package vendors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

const airVisualValidPayload = `{"historical":{"instant":[` +
	`{"ts":"2025-01-01T00:00:00Z","pm25":{"aqius":57,"conc":15.2}}]}}`

func airVisualServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAirVisualValidPayloadIsCached(t *testing.T) {
	dir := t.TempDir()
	srv := airVisualServer(t, airVisualValidPayload)
	c := NewAirVisualClient(srv.Client(), map[string]string{"NUXK": srv.URL}, dir)

	result, err := c.Fetch(context.Background(), airdata.Sensor{ID: "NUXK"}, airdata.Window{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 57.0, result.Rows[0].Fields["pm25_aqius"])

	_, err = os.Stat(filepath.Join(dir, "NUXK.json"))
	assert.NoError(t, err)
}

// TestAirVisualErrorPayloadServesCache covers the device's 2xx error shape
// (a body carrying "code"): it must count as a failed live call and fall
// back to the cached payload, flagged FromCache.
func TestAirVisualErrorPayloadServesCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NUXK.json"), []byte(airVisualValidPayload), 0o644))

	srv := airVisualServer(t, `{"code":"no_data_found"}`)
	c := NewAirVisualClient(srv.Client(), map[string]string{"NUXK": srv.URL}, dir)

	result, err := c.Fetch(context.Background(), airdata.Sensor{ID: "NUXK"}, airdata.Window{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 15.2, result.Rows[0].Fields["pm25_conc"])
}

// TestAirVisualErrorPayloadNotCached verifies an error payload never
// poisons the cache.
func TestAirVisualErrorPayloadNotCached(t *testing.T) {
	dir := t.TempDir()
	srv := airVisualServer(t, `{"code":"no_data_found"}`)
	c := NewAirVisualClient(srv.Client(), map[string]string{"NUXK": srv.URL}, dir)

	_, err := c.Fetch(context.Background(), airdata.Sensor{ID: "NUXK"}, airdata.Window{})
	require.Error(t, err)
	assert.Equal(t, airdata.FailureVendor, airdata.KindOf(err))

	_, err = os.Stat(filepath.Join(dir, "NUXK.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAirVisualNoCacheDirReportsLiveFailure(t *testing.T) {
	srv := airVisualServer(t, `{"code":"permission_denied"}`)
	c := NewAirVisualClient(srv.Client(), map[string]string{"NUXK": srv.URL}, "")

	_, err := c.Fetch(context.Background(), airdata.Sensor{ID: "NUXK"}, airdata.Window{})
	require.Error(t, err)
	assert.Equal(t, airdata.FailureVendor, airdata.KindOf(err))
}
