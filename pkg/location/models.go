package location

import "time"

// Location is a single reading from a location provider.
// Fix is false when the receiver reported no usable position; the
// coordinates are then meaningless and must not be used.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 when unknown
	Fix       bool
	Timestamp time.Time
}
