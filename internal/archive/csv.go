package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// EncodeCSV renders a row set as CSV with the shared columns first. Absent
// fields become empty cells, never sentinel values.
func EncodeCSV(rs *airdata.RowSet) ([]byte, error) {
	columns := rs.Columns()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}

	line := make([]string, len(columns))
	for _, row := range rs.Rows {
		for i, col := range columns {
			switch col {
			case "sensor_id":
				line[i] = row.SensorID
			case "sensor_name":
				line[i] = row.SensorName
			case "timestamp":
				if row.Timestamp.IsZero() {
					line[i] = ""
				} else {
					line[i] = row.Timestamp.UTC().Format(time.RFC3339Nano)
				}
			default:
				if v, ok := row.Fields[col]; ok {
					line[i] = cellString(v)
				} else {
					line[i] = ""
				}
			}
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// DecodeCSV parses a previously encoded archive back into a row set.
func DecodeCSV(content []byte) (*airdata.RowSet, error) {
	records, err := airdata.DecodeCSVRecords(string(content))
	if err != nil {
		return nil, err
	}

	rs := &airdata.RowSet{Rows: make([]airdata.Row, 0, len(records))}
	for _, rec := range records {
		row := airdata.Row{Fields: rec}
		if v, ok := rec["sensor_id"]; ok {
			row.SensorID = cellString(v)
			delete(rec, "sensor_id")
		}
		if v, ok := rec["sensor_name"]; ok {
			row.SensorName = cellString(v)
			delete(rec, "sensor_name")
		}
		if v, ok := rec["timestamp"]; ok {
			if ts, parsed := airdata.ParseTimestamp(v); parsed {
				row.Timestamp = ts
				delete(rec, "timestamp")
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}
