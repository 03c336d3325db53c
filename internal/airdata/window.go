package airdata

import "time"

// SplitWindow divides [start, end) into consecutive windows no longer than
// maxSpan. The result is contiguous, covers the range exactly once and uses
// the minimum number of windows; the final window is clamped to end. A
// maxSpan <= 0 means the vendor accepts any span and yields a single window.
func SplitWindow(start, end time.Time, maxSpan time.Duration) []Window {
	if !start.Before(end) {
		return nil
	}
	if maxSpan <= 0 || end.Sub(start) <= maxSpan {
		return []Window{{Start: start, End: end}}
	}

	var windows []Window
	for cur := start; cur.Before(end); {
		next := cur.Add(maxSpan)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
	return windows
}
