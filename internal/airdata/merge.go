package airdata

import (
	"fmt"
	"sort"
	"strings"
)

// Merge combines an existing archive with newly fetched rows. Duplicates are
// dropped keep-first by timestamp, so a previously archived row is never
// overwritten by a later fetch of the same instant. Rows without a timestamp
// deduplicate by full-row identity instead. The result is re-sorted
// ascending by timestamp so the archive stays query-ready.
func Merge(existing, incoming *RowSet) *RowSet {
	var combined []Row
	if existing != nil {
		combined = append(combined, existing.Rows...)
	}
	if incoming != nil {
		combined = append(combined, incoming.Rows...)
	}

	seenTS := make(map[int64]bool)
	seenRow := make(map[string]bool)
	merged := &RowSet{Rows: make([]Row, 0, len(combined))}

	for _, row := range combined {
		if !row.Timestamp.IsZero() {
			key := row.Timestamp.UnixNano()
			if seenTS[key] {
				continue
			}
			seenTS[key] = true
		} else {
			key := rowIdentity(row)
			if seenRow[key] {
				continue
			}
			seenRow[key] = true
		}
		merged.Rows = append(merged.Rows, row)
	}

	merged.SortByTimestamp()
	return merged
}

// rowIdentity builds a deterministic key over every field of a row.
func rowIdentity(row Row) string {
	keys := make([]string, 0, len(row.Fields))
	for k := range row.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(row.SensorID)
	b.WriteByte('|')
	b.WriteString(row.SensorName)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, row.Fields[k])
	}
	return b.String()
}
