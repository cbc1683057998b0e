package smoothing_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/benmeehan/heros-path/internal/smoothing"
	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const session = "session-1"

func newFilter() *smoothing.Filter {
	return smoothing.NewFilter(smoothing.DefaultConfig(), zerolog.Nop())
}

func ptr(v float64) *float64 { return &v }

// TestIsValid covers presence, finiteness and range checks.
func TestIsValid(t *testing.T) {
	cases := []struct {
		name   string
		sample smoothing.Sample
		want   bool
	}{
		{"valid", smoothing.NewSample(40.7589, -73.9851, 1), true},
		{"genuine origin", smoothing.NewSample(0, 0, 1), true},
		{"missing latitude", smoothing.Sample{Longitude: ptr(-73.9851)}, false},
		{"missing longitude", smoothing.Sample{Latitude: ptr(40.7589)}, false},
		{"both missing", smoothing.Sample{}, false},
		{"nan", smoothing.NewSample(math.NaN(), 1, 1), false},
		{"latitude out of range", smoothing.NewSample(91, 1, 1), false},
		{"longitude out of range", smoothing.NewSample(1, -181, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, smoothing.IsValid(tc.sample))
		})
	}
}

// TestFilter_Smooth_NoOriginSkew feeds two valid samples followed by one with
// missing coordinates; the estimate must stay near the valid samples.
func TestFilter_Smooth_NoOriginSkew(t *testing.T) {
	// Setup
	f := newFilter()
	w := f.NewWindow(session)

	_, err := f.Smooth(session, smoothing.NewSample(40.7589, -73.9851, 1000), w)
	require.NoError(t, err)
	_, err = f.Smooth(session, smoothing.NewSample(40.7590, -73.9850, 2000), w)
	require.NoError(t, err)

	// Execute
	res, err := f.Smooth(session, smoothing.Sample{TimestampMillis: 3000}, w)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, smoothing.OutcomeDiscarded, res.Outcome)
	assert.Nil(t, res.Sample.Latitude)
	assert.Nil(t, res.Sample.Longitude)
	require.True(t, res.HasEstimate)
	assert.InDelta(t, 40.75895, res.Estimate.Latitude, 0.0001)
	assert.InDelta(t, -73.98505, res.Estimate.Longitude, 0.0001)
	assert.Equal(t, 2, w.Len())
}

// TestFilter_Smooth_InvalidDoesNotTouchWindow checks that every kind of invalid
// sample leaves the window as it was.
func TestFilter_Smooth_InvalidDoesNotTouchWindow(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)
	_, err := f.Smooth(session, smoothing.NewSample(10, 10, 1), w)
	require.NoError(t, err)
	before := w.Recent()

	invalid := []smoothing.Sample{
		{},
		{Latitude: ptr(10)},
		smoothing.NewSample(math.NaN(), 10, 2),
		smoothing.NewSample(10, math.Inf(-1), 3),
		smoothing.NewSample(-95, 10, 4),
	}
	for _, s := range invalid {
		res, err := f.Smooth(session, s, w)
		require.NoError(t, err)
		assert.Equal(t, smoothing.OutcomeDiscarded, res.Outcome)
		assert.Equal(t, s, res.Sample)
	}

	assert.Equal(t, before, w.Recent())
	assert.Equal(t, uint64(len(invalid)), f.Stats().Discarded)
}

// TestFilter_Smooth_EmptyWindowDiscardHasNoEstimate checks the first-sample case.
func TestFilter_Smooth_EmptyWindowDiscardHasNoEstimate(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)

	res, err := f.Smooth(session, smoothing.Sample{}, w)

	require.NoError(t, err)
	assert.False(t, res.HasEstimate)
	assert.Zero(t, w.Len())
}

// TestFilter_Smooth_InsufficientHistory checks that the first two valid samples pass through.
func TestFilter_Smooth_InsufficientHistory(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)

	first := smoothing.NewSample(51.5007, -0.1246, 1).WithAccuracy(12)
	res, err := f.Smooth(session, first, w)
	require.NoError(t, err)
	assert.Equal(t, smoothing.OutcomeInsufficientHistory, res.Outcome)
	assert.Equal(t, 51.5007, *res.Sample.Latitude)
	assert.Equal(t, 12.0, *res.Sample.AccuracyMeters)

	res, err = f.Smooth(session, smoothing.NewSample(51.5008, -0.1247, 2), w)
	require.NoError(t, err)
	assert.Equal(t, smoothing.OutcomeInsufficientHistory, res.Outcome)
	assert.Equal(t, 2, w.Len())
}

// TestFilter_Smooth_Averages checks the arithmetic mean over history and the new sample.
func TestFilter_Smooth_Averages(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)
	for i, s := range []smoothing.Sample{
		smoothing.NewSample(10.0000, 20.0000, 1),
		smoothing.NewSample(10.0001, 20.0001, 2),
	} {
		_, err := f.Smooth(session, s, w)
		require.NoError(t, err, "sample %d", i)
	}

	res, err := f.Smooth(session, smoothing.NewSample(10.0002, 20.0002, 3).WithAccuracy(4), w)

	require.NoError(t, err)
	assert.Equal(t, smoothing.OutcomeAveraged, res.Outcome)
	assert.InDelta(t, 10.0001, *res.Sample.Latitude, 1e-9)
	assert.InDelta(t, 20.0001, *res.Sample.Longitude, 1e-9)
	assert.Equal(t, int64(3), res.Sample.TimestampMillis)
	assert.Equal(t, 4.0, *res.Sample.AccuracyMeters)

	// the smoothed value, not the raw one, is stored
	recent := w.Recent()
	assert.InDelta(t, 10.0001, *recent[len(recent)-1].Latitude, 1e-9)
}

// TestFilter_Smooth_LargeJumpPassthrough checks that a 500 m move with 3 m
// accuracy is returned raw.
func TestFilter_Smooth_LargeJumpPassthrough(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)
	base := geo.Point{Latitude: 40.7589, Longitude: -73.9851}

	_, err := f.Smooth(session, smoothing.NewSample(base.Latitude, base.Longitude, 1), w)
	require.NoError(t, err)
	_, err = f.Smooth(session, smoothing.NewSample(base.Latitude+0.000045, base.Longitude, 2), w)
	require.NoError(t, err)

	jumpLat := base.Latitude + 0.0045
	res, err := f.Smooth(session, smoothing.NewSample(jumpLat, base.Longitude, 3).WithAccuracy(3), w)

	require.NoError(t, err)
	assert.Equal(t, smoothing.OutcomeLargeJump, res.Outcome)
	assert.Equal(t, jumpLat, *res.Sample.Latitude)
	assert.Equal(t, base.Longitude, *res.Sample.Longitude)
	assert.Equal(t, uint64(1), f.Stats().LargeJumps)
}

// TestFilter_Smooth_LargeJumpNeedsGoodAccuracy checks that poorly measured or
// unmeasured jumps are still averaged.
func TestFilter_Smooth_LargeJumpNeedsGoodAccuracy(t *testing.T) {
	cases := []struct {
		name     string
		accuracy *float64
	}{
		{"no accuracy", nil},
		{"poor accuracy", ptr(25)},
		{"exactly excellent", ptr(5)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFilter()
			w := f.NewWindow(session)
			_, _ = f.Smooth(session, smoothing.NewSample(0.001, 0.001, 1), w)
			_, _ = f.Smooth(session, smoothing.NewSample(0.001, 0.001, 2), w)

			jump := smoothing.NewSample(0.01, 0.001, 3)
			jump.AccuracyMeters = tc.accuracy
			res, err := f.Smooth(session, jump, w)

			require.NoError(t, err)
			assert.Equal(t, smoothing.OutcomeAveraged, res.Outcome)
			assert.InDelta(t, 0.004, *res.Sample.Latitude, 1e-9)
		})
	}
}

// TestFilter_Smooth_WindowBound checks the window never holds more than five samples.
func TestFilter_Smooth_WindowBound(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)

	for i := 0; i < 50; i++ {
		var s smoothing.Sample
		if i%7 == 0 {
			s = smoothing.Sample{TimestampMillis: int64(i)}
		} else {
			s = smoothing.NewSample(45+float64(i)*1e-5, 7, int64(i))
		}
		_, err := f.Smooth(session, s, w)
		require.NoError(t, err)
		assert.LessOrEqual(t, w.Len(), 5)
	}
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, 5, w.Cap())
}

// TestFilter_Smooth_OutputAlwaysValid feeds random valid samples and checks
// every result validates.
func TestFilter_Smooth_OutputAlwaysValid(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		s := smoothing.NewSample(rng.Float64()*180-90, rng.Float64()*360-180, int64(i)).
			WithAccuracy(rng.Float64() * 20)
		res, err := f.Smooth(session, s, w)
		require.NoError(t, err)
		assert.True(t, smoothing.IsValid(res.Sample))
	}
}

// TestFilter_Smooth_ContractViolations checks that caller mistakes are errors.
func TestFilter_Smooth_ContractViolations(t *testing.T) {
	f := newFilter()

	_, err := f.Smooth(session, smoothing.NewSample(1, 1, 1), nil)
	assert.ErrorIs(t, err, smoothing.ErrNilWindow)

	w := f.NewWindow("other-session")
	_, err = f.Smooth(session, smoothing.NewSample(1, 1, 1), w)
	assert.ErrorIs(t, err, smoothing.ErrSessionMismatch)
	assert.ErrorContains(t, err, `window "other-session"`)
	assert.Equal(t, "other-session", w.SessionID())
	assert.Zero(t, w.Len())
}

// TestFilter_Smooth_DoesNotAliasInput checks that stored samples are copies.
func TestFilter_Smooth_DoesNotAliasInput(t *testing.T) {
	f := newFilter()
	w := f.NewWindow(session)
	s := smoothing.NewSample(10, 10, 1)

	_, err := f.Smooth(session, s, w)
	require.NoError(t, err)
	*s.Latitude = 500

	assert.Equal(t, 10.0, *w.Recent()[0].Latitude)
}

func TestNewFilter_ZeroConfigUsesDefaults(t *testing.T) {
	f := smoothing.NewFilter(smoothing.Config{JumpThresholdMeters: 50}, zerolog.Nop())

	cfg := f.Config()
	assert.Equal(t, 5, cfg.WindowSize)
	assert.Equal(t, 2, cfg.MinHistory)
	assert.Equal(t, 50.0, cfg.JumpThresholdMeters)
	assert.Equal(t, 5.0, cfg.ExcellentAccuracyMeters)
}
