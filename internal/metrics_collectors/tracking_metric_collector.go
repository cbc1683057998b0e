package metrics_collectors

import (
	"context"

	"github.com/benmeehan/heros-path/internal/smoothing"
)

// TrackingSource exposes the tracking service's counters.
type TrackingSource interface {
	Stats() smoothing.Stats
	OpenSessions() int
}

// SmoothingMetricCollector reports how many samples took each filter path.
type SmoothingMetricCollector struct {
	Source TrackingSource
}

func (s *SmoothingMetricCollector) Name() string {
	return "smoothing"
}

func (s *SmoothingMetricCollector) Collect(context.Context) any {
	stats := s.Source.Stats()
	return map[string]uint64{
		string(smoothing.OutcomeDiscarded):           stats.Discarded,
		string(smoothing.OutcomeInsufficientHistory): stats.InsufficientHistory,
		string(smoothing.OutcomeLargeJump):           stats.LargeJumps,
		string(smoothing.OutcomeAveraged):            stats.Averaged,
	}
}

func (s *SmoothingMetricCollector) Unit() string {
	return "count"
}

// SessionMetricCollector reports the number of open recording sessions.
type SessionMetricCollector struct {
	Source TrackingSource
}

func (s *SessionMetricCollector) Name() string {
	return "open_sessions"
}

func (s *SessionMetricCollector) Collect(context.Context) any {
	return s.Source.OpenSessions()
}

func (s *SessionMetricCollector) Unit() string {
	return "count"
}

// PingSource exposes the discovery service's ping counters.
type PingSource interface {
	RejectedPings() uint64
}

// PingMetricCollector reports pings refused before any search.
type PingMetricCollector struct {
	Source PingSource
}

func (p *PingMetricCollector) Name() string {
	return "rejected_pings"
}

func (p *PingMetricCollector) Collect(context.Context) any {
	return p.Source.RejectedPings()
}

func (p *PingMetricCollector) Unit() string {
	return "count"
}
