package airdata

import (
	"context"
	"time"
)

// FetchResult carries the normalized rows of one vendor call. FromCache is
// set when a client served a previously cached payload because the live call
// failed; callers must be able to tell the two apart.
type FetchResult struct {
	Rows      []Row
	FromCache bool
}

// Client abstracts one vendor's measurement API. Implementations convert all
// transport and payload faults into *FetchError and never let raw HTTP
// errors escape.
type Client interface {
	// Vendor returns the vendor this client talks to.
	Vendor() Vendor

	// Sensors lists the sensors available from this vendor, from static
	// configuration or a vendor directory call.
	Sensors(ctx context.Context) ([]Sensor, error)

	// MaxSpan is the vendor's maximum allowed time span per request.
	// Zero means the vendor takes no range (or any range) and the whole
	// window is fetched in one call.
	MaxSpan() time.Duration

	// Fetch retrieves and normalizes one sensor's measurements for the
	// given window.
	Fetch(ctx context.Context, sensor Sensor, win Window) (FetchResult, error)
}
