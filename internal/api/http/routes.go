package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
	"github.com/aqhub/airdata-aggregation/internal/archive"
	"github.com/aqhub/airdata-aggregation/internal/common"
)

var validate = validator.New()

// previewRows is how many rows the preview endpoint returns.
const previewRows = 10

// defaultLookback is the window used when the request omits start/end times.
const defaultLookback = 48 * time.Hour

// Deps bundles what the handlers need: the fetch service, the archiver for
// vendors served from archived history, and the per-request fetch timeout.
type Deps struct {
	Service      *airdata.Service
	Archiver     *archive.Archiver
	FetchTimeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	api.Get("/:vendor/sensors", func(c *fiber.Ctx) error {
		client, err := resolveVendor(deps.Service, c.Params("vendor"))
		if err != nil {
			return err
		}

		sensors, err := client.Sensors(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list sensors")
		}
		return c.JSON(fiber.Map{"sensors": sensors})
	})

	api.Post("/:vendor/preview", func(c *fiber.Ctx) error {
		client, err := resolveVendor(deps.Service, c.Params("vendor"))
		if err != nil {
			return err
		}

		req, err := bindDataRequest(c, false)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, meta, err := fetchRows(c, deps, client, req)
		if err != nil {
			return err
		}

		preview := rows.Records()
		if len(preview) > previewRows {
			preview = preview[:previewRows]
		}

		resp := fiber.Map{
			"preview":    preview,
			"total_rows": len(rows.Rows),
			"columns":    rows.Columns(),
		}
		if len(meta.failures) > 0 {
			resp["failures"] = meta.failures
		}
		if meta.fromCache {
			resp["from_cache"] = true
		}
		return c.JSON(resp)
	})

	api.Post("/:vendor/download", func(c *fiber.Ctx) error {
		client, err := resolveVendor(deps.Service, c.Params("vendor"))
		if err != nil {
			return err
		}

		req, err := bindDataRequest(c, true)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, meta, err := fetchRows(c, deps, client, req)
		if err != nil {
			return err
		}
		if meta.fromCache {
			c.Set("X-Data-From-Cache", "true")
		}

		var content []byte
		var contentType string
		switch req.Format {
		case "csv":
			content, err = archive.EncodeCSV(rows)
			contentType = "text/csv"
		case "json":
			content, err = json.Marshal(rows.Records())
			contentType = "application/json"
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to encode data")
		}

		filename := common.SanitizeFilename(fmt.Sprintf("%s_data_%s.%s",
			client.Vendor(), time.Now().UTC().Format("20060102_150405"), req.Format))
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		c.Set(fiber.HeaderContentType, contentType)
		return c.Send(content)
	})
}

// resolveVendor maps the path parameter to a registered client; a vendor
// with no client (unknown name or missing credentials) answers 503.
func resolveVendor(service *airdata.Service, name string) (airdata.Client, error) {
	client, ok := service.ClientFor(airdata.Vendor(name))
	if !ok {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable,
			fmt.Sprintf("vendor %q integration is not available", name))
	}
	return client, nil
}

// dataRequest is the shared preview/download body.
type dataRequest struct {
	Sensors   json.RawMessage `json:"sensors"`
	StartTime string          `json:"start_time" validate:"omitempty"`
	EndTime   string          `json:"end_time" validate:"omitempty"`
	Format    string          `json:"format" validate:"omitempty,oneof=csv json"`

	sensorIDs []string // nil means all
	window    airdata.Window
}

func bindDataRequest(c *fiber.Ctx, formatRequired bool) (*dataRequest, error) {
	var req dataRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
	}
	if req.Format == "" {
		if formatRequired {
			req.Format = "csv"
		}
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	if err := req.parseSensors(); err != nil {
		return nil, err
	}
	if err := req.parseWindow(); err != nil {
		return nil, err
	}
	return &req, nil
}

// parseSensors accepts "all", a list of ids, or nothing (meaning all).
// Ids may be JSON strings or numbers: vendors address sensors by numeric id,
// UUID, device hash or slug.
func (r *dataRequest) parseSensors() error {
	if len(r.Sensors) == 0 {
		return nil
	}

	var all string
	if err := json.Unmarshal(r.Sensors, &all); err == nil {
		if all == "all" || all == "" {
			return nil
		}
		r.sensorIDs = []string{all}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(r.Sensors))
	dec.UseNumber()
	var ids []any
	if err := dec.Decode(&ids); err != nil {
		return errors.New(`"sensors" must be "all" or a list of sensor ids`)
	}
	for _, id := range ids {
		switch v := id.(type) {
		case string:
			r.sensorIDs = append(r.sensorIDs, v)
		case json.Number:
			r.sensorIDs = append(r.sensorIDs, v.String())
		default:
			return errors.New(`"sensors" entries must be strings or numbers`)
		}
	}
	return nil
}

func (r *dataRequest) parseWindow() error {
	end := time.Now().UTC()
	start := end.Add(-defaultLookback)

	if r.EndTime != "" {
		ts, err := parseTime(r.EndTime)
		if err != nil {
			return fmt.Errorf("invalid end_time: %w", err)
		}
		end = ts
	}
	if r.StartTime != "" {
		ts, err := parseTime(r.StartTime)
		if err != nil {
			return fmt.Errorf("invalid start_time: %w", err)
		}
		start = ts
	}
	if !start.Before(end) {
		return errors.New("start_time must be before end_time")
	}
	r.window = airdata.Window{Start: start, End: end}
	return nil
}

// fetchMeta carries the side information of a fetch: per-window failures and
// whether any sensor's rows came from a cached payload fallback.
type fetchMeta struct {
	failures  []airdata.FailureRecord
	fromCache bool
}

// fetchRows resolves the requested sensors and retrieves their rows: from
// the archive for Nebo (whose live feed only serves the latest minutes),
// live from the vendor for everyone else.
func fetchRows(c *fiber.Ctx, deps Deps, client airdata.Client, req *dataRequest) (*airdata.RowSet, fetchMeta, error) {
	available, err := client.Sensors(c.UserContext())
	if err != nil {
		return nil, fetchMeta{}, fiber.NewError(fiber.StatusInternalServerError, "failed to resolve sensors")
	}

	sensors := available
	if req.sensorIDs != nil {
		byID := make(map[string]airdata.Sensor, len(available))
		for _, s := range available {
			byID[s.ID] = s
		}
		// The client owns the available slice; never append into it.
		sensors = make([]airdata.Sensor, 0, len(req.sensorIDs))
		for _, id := range req.sensorIDs {
			s, ok := byID[id]
			if !ok {
				return nil, fetchMeta{}, fiber.NewError(fiber.StatusBadRequest,
					fmt.Sprintf("unknown sensor id %q for vendor %s", id, client.Vendor()))
			}
			sensors = append(sensors, s)
		}
	}
	if len(sensors) == 0 {
		return nil, fetchMeta{}, fiber.NewError(fiber.StatusNotFound, "no sensors available for vendor")
	}

	if client.Vendor() == airdata.VendorNebo && deps.Archiver != nil {
		rows, err := deps.Archiver.Load(sensors, req.window)
		if err != nil {
			return nil, fetchMeta{}, fiber.NewError(fiber.StatusInternalServerError, "failed to read archived data")
		}
		if len(rows.Rows) == 0 {
			return nil, fetchMeta{}, fiber.NewError(fiber.StatusNotFound, "no data for requested parameters")
		}
		return rows, fetchMeta{}, nil
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), deps.FetchTimeout)
	defer cancel()

	report := deps.Service.FetchAll(ctx, client, sensors, req.window)
	rows := report.Combined()
	if len(rows.Rows) == 0 {
		if len(report.Failures) > 0 {
			return nil, fetchMeta{}, fiber.NewError(fiber.StatusInternalServerError,
				fmt.Sprintf("all fetches failed; first error: %s", report.Failures[0].Message))
		}
		return nil, fetchMeta{}, fiber.NewError(fiber.StatusNotFound, "no data for requested parameters")
	}

	meta := fetchMeta{failures: report.Failures}
	for _, res := range report.Results {
		if res.FromCache {
			meta.fromCache = true
		}
	}
	return rows, meta, nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
