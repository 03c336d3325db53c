package airdata

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a fetch or archive failure.
type FailureKind string

const (
	FailureNetwork     FailureKind = "network"
	FailureVendor      FailureKind = "vendor"
	FailureConfig      FailureKind = "config"
	FailureParse       FailureKind = "parse"
	FailurePersistence FailureKind = "persistence"
)

// ErrNoData is returned when a fetch succeeded but produced no rows for the
// requested parameters.
var ErrNoData = errors.New("no data for requested parameters")

// FetchError is the typed failure every vendor client reports. Raw transport
// errors never cross the client boundary without being wrapped in one.
type FetchError struct {
	Vendor   Vendor
	SensorID string
	Window   Window
	Kind     FailureKind
	Err      error
}

func (e *FetchError) Error() string {
	if e.Window.Start.IsZero() && e.Window.End.IsZero() {
		return fmt.Sprintf("%s sensor %s: %s failure: %v", e.Vendor, e.SensorID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s sensor %s [%s, %s): %s failure: %v",
		e.Vendor, e.SensorID,
		e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339),
		e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with vendor/sensor/window context. If err is
// already a FetchError it is returned unchanged so the innermost
// classification wins.
func NewFetchError(vendor Vendor, sensorID string, win Window, kind FailureKind, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Vendor: vendor, SensorID: sensorID, Window: win, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from err, defaulting to vendor failure
// for untyped errors.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureVendor
}
