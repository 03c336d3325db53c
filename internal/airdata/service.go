package airdata

import (
	"context"
	"log"
	"sync"
)

// DefaultConcurrency caps the fan-out worker pool when no explicit limit is
// configured, as courtesy towards vendor rate limits.
const DefaultConcurrency = 4

// FailureRecord describes one failed sub-window fetch. Failures are always
// surfaced alongside partial data, never silently dropped.
type FailureRecord struct {
	Vendor   Vendor      `json:"vendor"`
	SensorID string      `json:"sensor_id"`
	Window   Window      `json:"-"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

// SensorResult is the outcome of fetching one sensor across all its
// sub-windows: the union of successful windows' rows in chronological window
// order, plus a record per failed window.
type SensorResult struct {
	Sensor    Sensor
	Rows      []Row
	FromCache bool
	Failures  []FailureRecord
}

// FetchReport aggregates per-sensor results for one FetchAll call.
type FetchReport struct {
	Results  map[string]*SensorResult
	Failures []FailureRecord
}

// Combined returns all successful rows across sensors as one row set,
// sorted ascending by timestamp.
func (r *FetchReport) Combined() *RowSet {
	rs := &RowSet{}
	for _, res := range r.Results {
		rs.Rows = append(rs.Rows, res.Rows...)
	}
	rs.SortByTimestamp()
	return rs
}

// Service coordinates concurrent vendor fetches across sensors and
// sub-windows through a bounded worker pool.
type Service struct {
	clients     map[Vendor]Client
	concurrency int
}

// NewService creates a Service over the given vendor clients. A vendor whose
// credentials were missing at startup simply has no client registered.
func NewService(clients []Client, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	m := make(map[Vendor]Client, len(clients))
	for _, c := range clients {
		m[c.Vendor()] = c
	}
	return &Service{clients: m, concurrency: concurrency}
}

// ClientFor returns the registered client for a vendor, if any.
func (s *Service) ClientFor(v Vendor) (Client, bool) {
	c, ok := s.clients[v]
	return c, ok
}

type fetchTask struct {
	sensorIdx int
	windowIdx int
	sensor    Sensor
	window    Window
}

// FetchAll fetches every (sensor, sub-window) pair for one vendor through a
// bounded worker pool. One sub-window's failure never cancels its siblings;
// each sensor's rows are reassembled in window-index order regardless of
// completion order.
func (s *Service) FetchAll(ctx context.Context, client Client, sensors []Sensor, win Window) *FetchReport {
	report := &FetchReport{Results: make(map[string]*SensorResult, len(sensors))}

	var tasks []fetchTask
	windowsPerSensor := make([][]Window, len(sensors))
	for i, sensor := range sensors {
		windows := SplitWindow(win.Start, win.End, client.MaxSpan())
		windowsPerSensor[i] = windows
		report.Results[sensor.ID] = &SensorResult{Sensor: sensor}
		for j, w := range windows {
			tasks = append(tasks, fetchTask{sensorIdx: i, windowIdx: j, sensor: sensor, window: w})
		}
	}
	if len(tasks) == 0 {
		return report
	}

	workers := s.concurrency
	if len(tasks) < workers {
		workers = len(tasks)
	}

	// Per-sensor slots indexed by window so completion order cannot
	// reorder the final concatenation.
	slots := make([][][]Row, len(sensors))
	cached := make([][]bool, len(sensors))
	for i := range sensors {
		slots[i] = make([][]Row, len(windowsPerSensor[i]))
		cached[i] = make([]bool, len(windowsPerSensor[i]))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make([][]FailureRecord, len(sensors))
	)

	taskCh := make(chan fetchTask)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				result, err := client.Fetch(ctx, task.sensor, task.window)
				mu.Lock()
				if err != nil {
					log.Printf("fetch failed for %s sensor %s: %v", client.Vendor(), task.sensor.ID, err)
					failures[task.sensorIdx] = append(failures[task.sensorIdx], FailureRecord{
						Vendor:   client.Vendor(),
						SensorID: task.sensor.ID,
						Window:   task.window,
						Kind:     KindOf(err),
						Message:  err.Error(),
					})
				} else {
					slots[task.sensorIdx][task.windowIdx] = result.Rows
					if result.FromCache {
						cached[task.sensorIdx][task.windowIdx] = true
						log.Printf("served cached payload for %s sensor %s", client.Vendor(), task.sensor.ID)
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()

	for i, sensor := range sensors {
		res := report.Results[sensor.ID]
		for j := range slots[i] {
			res.Rows = append(res.Rows, slots[i][j]...)
			if cached[i][j] {
				res.FromCache = true
			}
		}
		res.Failures = failures[i]
		report.Failures = append(report.Failures, failures[i]...)
	}
	return report
}
