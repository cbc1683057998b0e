package models

import (
	"time"
)

// Sample message types.
const (
	SampleTypeStart  = "start"
	SampleTypeSample = "sample"
	SampleTypeEnd    = "end"
)

// SampleMessage is a raw GPS reading, or a session start/end marker, sent by the app.
type SampleMessage struct {
	Type            string   `json:"type"`
	SessionID       string   `json:"session_id"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	Accuracy        *float64 `json:"accuracy,omitempty"`
	TimestampMillis int64    `json:"timestamp_millis,omitempty"`
}

// SmoothedLocation is the filtered position published for each accepted reading.
type SmoothedLocation struct {
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Outcome   string    `json:"outcome"`
}

// AgentStatus is the periodic health report of the agent.
type AgentStatus struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    float64        `json:"uptime_seconds"`
	Metrics   map[string]any `json:"metrics"`
}
