package smoothing

import (
	"github.com/benmeehan/heros-path/pkg/geo"
)

// Sample is a single GPS reading. A nil coordinate means the provider did not
// report one; it is never read as zero.
type Sample struct {
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	AccuracyMeters  *float64 `json:"accuracy_meters,omitempty"`
	TimestampMillis int64    `json:"timestamp_millis"`
}

// NewSample builds a sample with both coordinates present.
func NewSample(lat, lng float64, timestampMillis int64) Sample {
	return Sample{
		Latitude:        &lat,
		Longitude:       &lng,
		TimestampMillis: timestampMillis,
	}
}

// WithAccuracy returns a copy of s carrying the given accuracy.
func (s Sample) WithAccuracy(meters float64) Sample {
	s.AccuracyMeters = &meters
	return s
}

// Point returns the sample's coordinate when it is usable for arithmetic.
func (s Sample) Point() (geo.Point, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return geo.Point{}, false
	}
	p := geo.Point{Latitude: *s.Latitude, Longitude: *s.Longitude}
	if !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}

// IsValid reports whether both coordinates are present, finite and in range.
func IsValid(s Sample) bool {
	_, ok := s.Point()
	return ok
}

// at returns a sample positioned at p that keeps the timestamp and accuracy of s.
// Pointer fields are copied so the result never aliases the caller's sample.
func (s Sample) at(p geo.Point) Sample {
	out := NewSample(p.Latitude, p.Longitude, s.TimestampMillis)
	if s.AccuracyMeters != nil {
		out = out.WithAccuracy(*s.AccuracyMeters)
	}
	return out
}
