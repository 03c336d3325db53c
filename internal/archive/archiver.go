package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// Archiver incrementally persists one vendor's readings: every cycle it
// fetches the latest rows per sensor, merges them keep-first against the
// stored archive and writes the result back as a complete replacement.
type Archiver struct {
	client  airdata.Client
	store   Store
	sensors []airdata.Sensor

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewArchiver(client airdata.Client, store Store, sensors []airdata.Sensor) *Archiver {
	return &Archiver{
		client:  client,
		store:   store,
		sensors: sensors,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ArchiveName is the per-sensor file name inside the store.
func ArchiveName(sensorID string) string {
	return sensorID + "_history.csv"
}

// RunCycle archives every configured sensor once. One sensor's failure is
// logged and never blocks the remaining sensors or the next cycle.
func (a *Archiver) RunCycle(ctx context.Context) {
	for _, sensor := range a.sensors {
		if ctx.Err() != nil {
			log.Printf("archiver: cycle aborted: %v", ctx.Err())
			return
		}
		if err := a.ArchiveSensor(ctx, sensor); err != nil {
			log.Printf("archiver: cycle failed for sensor %s: %v", sensor.ID, err)
		}
	}
}

// ArchiveSensor runs one fetch-merge-write cycle for a single sensor.
// Cycles for the same sensor are serialized by a per-sensor lock so
// overlapping ticks cannot race on the same archive file.
func (a *Archiver) ArchiveSensor(ctx context.Context, sensor airdata.Sensor) error {
	lock := a.sensorLock(sensor.ID)
	lock.Lock()
	defer lock.Unlock()

	result, err := a.client.Fetch(ctx, sensor, airdata.Window{})
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		log.Printf("archiver: no new rows for sensor %s this cycle", sensor.ID)
		return nil
	}
	if result.FromCache {
		// A cached payload re-ingests rows already archived; the
		// keep-first merge makes that a no-op, but record it.
		log.Printf("archiver: sensor %s rows came from cache fallback", sensor.ID)
	}

	incoming := &airdata.RowSet{Rows: result.Rows}
	name := ArchiveName(sensor.ID)

	existing, err := a.loadExisting(name)
	if err != nil {
		return &airdata.FetchError{
			Vendor: a.client.Vendor(), SensorID: sensor.ID,
			Kind: airdata.FailurePersistence, Err: err,
		}
	}

	merged := airdata.Merge(existing, incoming)
	content, err := EncodeCSV(merged)
	if err != nil {
		return &airdata.FetchError{
			Vendor: a.client.Vendor(), SensorID: sensor.ID,
			Kind: airdata.FailurePersistence, Err: err,
		}
	}
	if err := a.store.Upload(name, content); err != nil {
		return &airdata.FetchError{
			Vendor: a.client.Vendor(), SensorID: sensor.ID,
			Kind: airdata.FailurePersistence, Err: fmt.Errorf("upload %s: %w", name, err),
		}
	}

	newCount := 0
	if existing != nil {
		newCount = len(merged.Rows) - len(existing.Rows)
	} else {
		newCount = len(merged.Rows)
	}
	log.Printf("archiver: sensor %s merged %d new rows, archive now %d rows", sensor.ID, newCount, len(merged.Rows))
	return nil
}

func (a *Archiver) loadExisting(name string) (*airdata.RowSet, error) {
	content, err := a.store.Download(name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rs, err := DecodeCSV(content)
	if err != nil {
		// A corrupt archive is a persistence fault, not a reason to
		// overwrite history with only the new rows.
		return nil, fmt.Errorf("decode existing archive %s: %w", name, err)
	}
	return rs, nil
}

// Load returns the stored archive rows for the given sensors, filtered by
// the window when one is set. Used by the HTTP layer for Nebo preview and
// download, which read archived history instead of hitting the live API.
func (a *Archiver) Load(sensors []airdata.Sensor, win airdata.Window) (*airdata.RowSet, error) {
	combined := &airdata.RowSet{}
	for _, sensor := range sensors {
		content, err := a.store.Download(ArchiveName(sensor.ID))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rs, err := DecodeCSV(content)
		if err != nil {
			return nil, err
		}
		for _, row := range rs.Rows {
			if !win.Start.IsZero() && !row.Timestamp.IsZero() && row.Timestamp.Before(win.Start) {
				continue
			}
			if !win.End.IsZero() && !row.Timestamp.IsZero() && !row.Timestamp.Before(win.End) {
				continue
			}
			combined.Rows = append(combined.Rows, row)
		}
	}
	combined.SortByTimestamp()
	return combined, nil
}

func (a *Archiver) sensorLock(sensorID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[sensorID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[sensorID] = lock
	}
	return lock
}
