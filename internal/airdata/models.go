package airdata

import (
	"sort"
	"time"
)

// Vendor identifies an external air-quality API provider.
type Vendor string

const (
	VendorAurassure      Vendor = "aurassure"
	VendorAirGradient    Vendor = "airgradient"
	VendorAirVisual      Vendor = "airvisual"
	VendorCraftedClimate Vendor = "craftedclimate"
	VendorEcomeasure     Vendor = "ecomeasure"
	VendorEnvira         Vendor = "envira"
	VendorNebo           Vendor = "nebo"
)

// Sensor is one device/measurement point belonging to a vendor.
// Identity is (vendor, ID); the set of sensors is fixed at startup.
type Sensor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Vendor Vendor `json:"-"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Span returns the window's duration.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Row is a single normalized measurement. Timestamp is always UTC; a zero
// Timestamp means the vendor record carried none. Vendor-specific columns
// live in Fields verbatim; an absent field is simply not present in the map,
// never a sentinel value.
type Row struct {
	SensorID   string
	SensorName string
	Timestamp  time.Time
	Fields     map[string]any
}

// RowSet is an ordered collection of measurement rows for one or more sensors.
type RowSet struct {
	Rows []Row
}

// SortByTimestamp orders rows ascending by timestamp. Rows without a
// timestamp sort after all timestamped rows, keeping their relative order.
func (rs *RowSet) SortByTimestamp() {
	sort.SliceStable(rs.Rows, func(i, j int) bool {
		a, b := rs.Rows[i].Timestamp, rs.Rows[j].Timestamp
		if a.IsZero() {
			return false
		}
		if b.IsZero() {
			return true
		}
		return a.Before(b)
	})
}

// Columns returns the union of column names across all rows: the shared
// sensor_id/sensor_name/timestamp columns first, then vendor-specific
// field names in lexical order.
func (rs *RowSet) Columns() []string {
	seen := make(map[string]bool)
	for _, r := range rs.Rows {
		for k := range r.Fields {
			seen[k] = true
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append([]string{"sensor_id", "sensor_name", "timestamp"}, extra...)
}

// Records renders each row as a flat map suitable for JSON encoding.
// Fields absent from a row are omitted, not zero-filled.
func (rs *RowSet) Records() []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		rec := make(map[string]any, len(r.Fields)+3)
		rec["sensor_id"] = r.SensorID
		if r.SensorName != "" {
			rec["sensor_name"] = r.SensorName
		}
		if !r.Timestamp.IsZero() {
			rec["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		for k, v := range r.Fields {
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out
}
