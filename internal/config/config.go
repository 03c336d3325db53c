package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultAirVisualDevices maps device ids to their public endpoint URLs.
var defaultAirVisualDevices = map[string]string{
	"NUXK": "https://device.iqair.com/v2/686d464aad899b2bc5156788",
	"5UEO": "https://device.iqair.com/v2/686d479c83f5802962f3d379",
	"215J": "https://device.iqair.com/v2/688768ce8863f9662b51a598",
}

// AppConfig is resolved once at startup and passed by reference into every
// component; no fetch logic reads the environment after this.
type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration
	CORSOrigins string

	// Fan-out worker pool cap for preview/download fetches.
	FetchConcurrency int

	// Archiver settings.
	ArchiveDir      string
	ArchiveInterval time.Duration

	// Aurassure: header credentials plus numeric thing ids.
	AurassureAccessID  string
	AurassureAccessKey string
	AurassureSensorIDs []string

	// AirGradient: query-string token plus location ids.
	AirGradientToken       string
	AirGradientLocationIDs []string

	// AirVisual public device endpoints; cache dir enables the explicit
	// cached-payload fallback.
	AirVisualDevices  map[string]string
	AirVisualCacheDir string

	// Crafted Climate: API key plus the unit's AUID.
	CraftedClimateAPIKey string
	CraftedClimateAUID   string

	// Ecomeasure: TOKEN-scheme auth plus sensor ids.
	EcomeasureToken     string
	EcomeasureSensorIDs []string

	// Envira public device UUIDs.
	EnviraDeviceUUIDs []string

	// Nebo: token header plus the shared code for the signed hash.
	NeboToken       string
	NeboCode        string
	NeboSensorSlugs []string
}

// Load reads configuration from environment with sensible defaults. The
// caller loads .env beforehand; Load itself only reads the environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.CORSOrigins = getenvDefault("CORS_ORIGINS", "*")
	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", 4)

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	// Archive cycle: default every 2 minutes.
	intervalStr := getenvDefault("ARCHIVE_INTERVAL", "2m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ARCHIVE_INTERVAL: %w", err)
	}
	cfg.ArchiveInterval = interval
	cfg.ArchiveDir = getenvDefault("ARCHIVE_DIR", "archive")

	cfg.AurassureAccessID = os.Getenv("AURASSURE_ACCESS_ID")
	cfg.AurassureAccessKey = os.Getenv("AURASSURE_ACCESS_KEY")
	cfg.AurassureSensorIDs = getenvList("AURASSURE_SENSOR_IDS", "23883,23884,23885")

	cfg.AirGradientToken = os.Getenv("AIRGRADIENT_API_TOKEN")
	if cfg.AirGradientToken == "" {
		cfg.AirGradientToken = os.Getenv("AIRGRADIENT_API_KEY")
	}
	cfg.AirGradientLocationIDs = getenvList("AIRGRADIENT_LOCATION_IDS", "170379,170380,170381")

	devices, err := loadAirVisualDevices()
	if err != nil {
		return nil, err
	}
	cfg.AirVisualDevices = devices
	cfg.AirVisualCacheDir = os.Getenv("AIRVISUAL_CACHE_DIR")

	cfg.CraftedClimateAPIKey = os.Getenv("CRAFTED_CLIMATE_API_KEY")
	cfg.CraftedClimateAUID = os.Getenv("CRAFTED_CLIMATE_AUID")

	cfg.EcomeasureToken = os.Getenv("ECOMEASURE_TOKEN")
	cfg.EcomeasureSensorIDs = getenvList("ECOMEASURE_SENSOR_IDS", "20053,20055,20054")

	cfg.EnviraDeviceUUIDs = loadEnviraDevices()

	cfg.NeboToken = os.Getenv("NEBO_TOKEN")
	cfg.NeboCode = os.Getenv("NEBO_CODE")
	cfg.NeboSensorSlugs = getenvList("NEBO_SENSOR_SLUGS", "")

	return cfg, nil
}

// loadAirVisualDevices parses AIRVISUAL_DEVICES ("id=url,id=url") or falls
// back to the built-in device list.
func loadAirVisualDevices() (map[string]string, error) {
	raw := os.Getenv("AIRVISUAL_DEVICES")
	if raw == "" {
		devices := make(map[string]string, len(defaultAirVisualDevices))
		for id, u := range defaultAirVisualDevices {
			devices[id] = u
		}
		return devices, nil
	}

	devices := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		id, u, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || id == "" || u == "" {
			return nil, fmt.Errorf("invalid AIRVISUAL_DEVICES entry %q; expected id=url", pair)
		}
		devices[id] = u
	}
	return devices, nil
}

// loadEnviraDevices collects ENVIRA_DEVICE_1_UUID .. ENVIRA_DEVICE_9_UUID.
func loadEnviraDevices() []string {
	var uuids []string
	for i := 1; i < 10; i++ {
		if uuid := os.Getenv(fmt.Sprintf("ENVIRA_DEVICE_%d_UUID", i)); uuid != "" {
			uuids = append(uuids, uuid)
		}
	}
	if len(uuids) == 0 {
		uuids = []string{"fba1d9dd-5031-334d-4e2e-3120ff0f3429"}
	}
	return uuids
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvList(key, def string) []string {
	raw := getenvDefault(key, def)
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
