package smoothing

import "github.com/benmeehan/heros-path/pkg/geo"

// Window holds the most recent smoothed samples of one recording session.
// It must not be shared between sessions or used from several goroutines.
type Window struct {
	sessionID string
	size      int
	recent    []Sample
}

func newWindow(sessionID string, size int) *Window {
	return &Window{
		sessionID: sessionID,
		size:      size,
		recent:    make([]Sample, 0, size),
	}
}

// SessionID returns the recording session the window was created for.
func (w *Window) SessionID() string {
	return w.sessionID
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return len(w.recent)
}

// Cap returns the maximum number of samples the window keeps.
func (w *Window) Cap() int {
	return w.size
}

// Recent returns a copy of the held samples, oldest first.
func (w *Window) Recent() []Sample {
	out := make([]Sample, len(w.recent))
	copy(out, w.recent)
	return out
}

// Last returns the position of the newest valid sample in the window.
func (w *Window) Last() (geo.Point, bool) {
	for i := len(w.recent) - 1; i >= 0; i-- {
		if p, ok := w.recent[i].Point(); ok {
			return p, true
		}
	}
	return geo.Point{}, false
}

// points re-validates the history and returns the usable coordinates, oldest first.
func (w *Window) points() []geo.Point {
	pts := make([]geo.Point, 0, len(w.recent))
	for _, s := range w.recent {
		if p, ok := s.Point(); ok {
			pts = append(pts, p)
		}
	}
	return pts
}

func (w *Window) push(s Sample) {
	w.recent = append(w.recent, s)
	if over := len(w.recent) - w.size; over > 0 {
		// evict oldest in place
		n := copy(w.recent, w.recent[over:])
		w.recent = w.recent[:n]
	}
}
