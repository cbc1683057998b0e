package smoothing

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/rs/zerolog"
)

var (
	// ErrNilWindow is returned when Smooth is called without a window.
	ErrNilWindow = errors.New("smoothing window is nil")
	// ErrSessionMismatch is returned when a window is used by a session other than its owner.
	ErrSessionMismatch = errors.New("smoothing window belongs to a different session")
)

// Outcome describes which path Smooth took for a sample.
type Outcome string

const (
	// OutcomeDiscarded means the sample had missing or out-of-range coordinates.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeInsufficientHistory means there were too few prior points to average.
	OutcomeInsufficientHistory Outcome = "insufficient_history"
	// OutcomeLargeJump means a well-measured large movement bypassed averaging.
	OutcomeLargeJump Outcome = "large_jump"
	// OutcomeAveraged means the result is the mean of the history and the sample.
	OutcomeAveraged Outcome = "averaged"
)

// Config controls the smoothing filter. Zero fields fall back to DefaultConfig.
type Config struct {
	// WindowSize is the number of smoothed samples kept per session.
	WindowSize int `yaml:"window_size"`

	// MinHistory is the number of prior valid samples needed before averaging.
	MinHistory int `yaml:"min_history"`

	// JumpThresholdMeters is the distance from the previous point above which a
	// well-measured sample is taken as real movement.
	JumpThresholdMeters float64 `yaml:"jump_threshold_meters"`

	// ExcellentAccuracyMeters is the accuracy a sample must beat for a large jump
	// to bypass averaging.
	ExcellentAccuracyMeters float64 `yaml:"excellent_accuracy_meters"`
}

// DefaultConfig returns the recommended filter settings.
func DefaultConfig() Config {
	return Config{
		WindowSize:              5,
		MinHistory:              2,
		JumpThresholdMeters:     20,
		ExcellentAccuracyMeters: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinHistory <= 0 {
		c.MinHistory = d.MinHistory
	}
	if c.JumpThresholdMeters <= 0 {
		c.JumpThresholdMeters = d.JumpThresholdMeters
	}
	if c.ExcellentAccuracyMeters <= 0 {
		c.ExcellentAccuracyMeters = d.ExcellentAccuracyMeters
	}
	return c
}

// Result is the output of Smooth for one sample.
type Result struct {
	// Sample is the value to report for this reading. For discarded samples it
	// is the input, unchanged.
	Sample  Sample
	Outcome Outcome

	// Estimate is the best known position after this reading. For a discarded
	// sample it is the newest position in the window, if any.
	Estimate    geo.Point
	HasEstimate bool
}

// Stats counts how samples were handled since the filter was created.
type Stats struct {
	Discarded           uint64 `json:"discarded"`
	InsufficientHistory uint64 `json:"insufficient_history"`
	LargeJumps          uint64 `json:"large_jumps"`
	Averaged            uint64 `json:"averaged"`
}

// Filter smooths GPS samples with a moving average over a per-session window.
// A Filter may be shared between sessions; each session owns its Window.
type Filter struct {
	cfg    Config
	logger zerolog.Logger

	discarded atomic.Uint64
	passed    atomic.Uint64
	jumps     atomic.Uint64
	averaged  atomic.Uint64
}

// NewFilter creates a Filter with the given configuration.
func NewFilter(cfg Config, logger zerolog.Logger) *Filter {
	return &Filter{
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Config returns the effective configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// NewWindow creates an empty window owned by sessionID.
func (f *Filter) NewWindow(sessionID string) *Window {
	return newWindow(sessionID, f.cfg.WindowSize)
}

// Stats returns a snapshot of the outcome counters.
func (f *Filter) Stats() Stats {
	return Stats{
		Discarded:           f.discarded.Load(),
		InsufficientHistory: f.passed.Load(),
		LargeJumps:          f.jumps.Load(),
		Averaged:            f.averaged.Load(),
	}
}

// Smooth validates sample and returns its smoothed value, updating w.
// Invalid samples are returned unchanged and leave w untouched; the only
// errors are caller mistakes (no window, or a window from another session).
func (f *Filter) Smooth(sessionID string, sample Sample, w *Window) (Result, error) {
	if w == nil {
		return Result{}, ErrNilWindow
	}
	if owner := w.SessionID(); owner != sessionID {
		return Result{}, fmt.Errorf("%w: window %q, caller %q", ErrSessionMismatch, owner, sessionID)
	}

	point, ok := sample.Point()
	if !ok {
		f.discarded.Add(1)
		f.logger.Warn().
			Str("session_id", sessionID).
			Int64("timestamp_millis", sample.TimestampMillis).
			Msg("Discarding GPS sample with missing or out-of-range coordinates")

		res := Result{Sample: sample, Outcome: OutcomeDiscarded}
		res.Estimate, res.HasEstimate = w.Last()
		return res, nil
	}

	history := w.points()
	if len(history) < f.cfg.MinHistory {
		out := sample.at(point)
		w.push(out)
		f.passed.Add(1)
		return Result{Sample: out, Outcome: OutcomeInsufficientHistory, Estimate: point, HasEstimate: true}, nil
	}

	if f.isLargeJump(history[len(history)-1], point, sample.AccuracyMeters) {
		out := sample.at(point)
		w.push(out)
		f.jumps.Add(1)
		f.logger.Debug().
			Str("session_id", sessionID).
			Float64("latitude", point.Latitude).
			Float64("longitude", point.Longitude).
			Msg("Large well-measured movement, skipping averaging")
		return Result{Sample: out, Outcome: OutcomeLargeJump, Estimate: point, HasEstimate: true}, nil
	}

	mean := average(append(history, point))
	out := sample.at(mean)
	w.push(out)
	f.averaged.Add(1)
	return Result{Sample: out, Outcome: OutcomeAveraged, Estimate: mean, HasEstimate: true}, nil
}

func (f *Filter) isLargeJump(prev, next geo.Point, accuracy *float64) bool {
	if accuracy == nil {
		return false
	}
	return geo.Distance(prev, next) > f.cfg.JumpThresholdMeters && *accuracy < f.cfg.ExcellentAccuracyMeters
}

// average returns the arithmetic mean of pts. pts must not be empty.
func average(pts []geo.Point) geo.Point {
	var lat, lng float64
	for _, p := range pts {
		lat += p.Latitude
		lng += p.Longitude
	}
	n := float64(len(pts))
	return geo.Point{Latitude: lat / n, Longitude: lng / n}
}
