package models

import (
	"time"

	"github.com/benmeehan/heros-path/pkg/geo"
)

// Trip is a finished recording session.
type Trip struct {
	ID        string      `json:"trip_id"`
	DeviceID  string      `json:"device_id"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
	Route     []geo.Point `json:"route"`
}

// TripSummary is published once a trip's discoveries have been consolidated.
type TripSummary struct {
	TripID         string    `json:"trip_id"`
	DeviceID       string    `json:"device_id"`
	CompletedAt    time.Time `json:"completed_at"`
	RoutePoints    int       `json:"route_points"`
	SearchPoints   int       `json:"search_points"`
	FailedSearches int       `json:"failed_searches"`
	Places         int       `json:"places"`
	FoundBySAR     int       `json:"found_by_sar"`
	FoundByPing    int       `json:"found_by_ping"`
	FoundByBoth    int       `json:"found_by_both"`
}

// PingRequest asks for the places around a position during a trip.
// Coordinates are nil when the app sent none.
type PingRequest struct {
	TripID    string   `json:"trip_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}
