package airdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampKeys are the record keys recognized as the measurement time,
// checked in order. The matched key is lifted into Row.Timestamp; all other
// fields pass through untouched.
var timestampKeys = []string{"timestamp", "time", "ts", "datetime", "date"}

// unix timestamps above this are treated as milliseconds.
const unixMillisThreshold = int64(1e11)

// ParseTimestamp converts a vendor timestamp value into UTC. It accepts unix
// seconds, unix milliseconds and ISO-8601 (with or without Z / fractional
// seconds). Sub-second precision is preserved where present.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case float64:
		return unixToTime(int64(t)), true
	case int64:
		return unixToTime(t), true
	case int:
		return unixToTime(int64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixToTime(n), true
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func unixToTime(n int64) time.Time {
	if n > unixMillisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// UnwrapRecords locates the record array inside a decoded vendor envelope.
// Envelope keys vary per vendor: a bare array, "data", "results",
// "measurements" or the nested AirVisual "historical.instant".
func UnwrapRecords(payload any) ([]map[string]any, error) {
	switch p := payload.(type) {
	case []any:
		return toRecordSlice(p)
	case []map[string]any:
		return p, nil
	case map[string]any:
		for _, key := range []string{"data", "results", "measurements"} {
			if v, ok := p[key]; ok {
				if arr, ok := v.([]any); ok {
					return toRecordSlice(arr)
				}
			}
		}
		if hist, ok := p["historical"].(map[string]any); ok {
			if arr, ok := hist["instant"].([]any); ok {
				return toRecordSlice(arr)
			}
		}
		return nil, errors.New("no record array found in envelope")
	default:
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
}

func toRecordSlice(arr []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record is %T, expected object", item)
		}
		records = append(records, rec)
	}
	return records, nil
}

// FlattenFields flattens nested objects one level at a time using "_" as the
// separator, so {"pm25": {"aqius": 12}} becomes {"pm25_aqius": 12}.
func FlattenFields(rec map[string]any) map[string]any {
	flat := make(map[string]any, len(rec))
	flattenInto(flat, "", rec)
	return flat
}

func flattenInto(dst map[string]any, prefix string, rec map[string]any) {
	for k, v := range rec {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(dst, key, nested)
			continue
		}
		dst[key] = v
	}
}

// NormalizeRecords turns raw vendor records into rows tagged with the
// sensor's id and display name. The first recognized timestamp key is parsed
// into the canonical UTC timestamp; all remaining fields are kept verbatim.
func NormalizeRecords(sensor Sensor, records []map[string]any) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		flat := FlattenFields(rec)
		row := Row{
			SensorID:   sensor.ID,
			SensorName: sensor.Name,
			Fields:     flat,
		}
		for _, key := range timestampKeys {
			v, ok := flat[key]
			if !ok {
				continue
			}
			if ts, ok := ParseTimestamp(v); ok {
				row.Timestamp = ts
				delete(flat, key)
				break
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// DecodeCSVRecords parses CSV text (header row required) into generic
// records. Numeric cells become float64, but only when the canonical float
// formatting reproduces the cell exactly, so zero-padded ids and
// exponent-shaped codes keep their text on a round-trip. Empty cells are
// omitted so absent values stay absent.
func DecodeCSVRecords(text string) ([]map[string]any, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	lines, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, errors.New("empty csv")
	}

	header := lines[0]
	records := make([]map[string]any, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rec := make(map[string]any, len(header))
		for i, cell := range line {
			if i >= len(header) || cell == "" {
				continue
			}
			if f, err := strconv.ParseFloat(cell, 64); err == nil &&
				strconv.FormatFloat(f, 'f', -1, 64) == cell {
				rec[header[i]] = f
			} else {
				rec[header[i]] = cell
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
