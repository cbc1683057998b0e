package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/heros-path/internal/models"
	"github.com/benmeehan/heros-path/internal/smoothing"
	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/benmeehan/heros-path/pkg/location"
	"github.com/benmeehan/heros-path/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownSession is returned for samples addressed to a session that is not open.
	ErrUnknownSession = errors.New("unknown recording session")
	// ErrSessionExists is returned when opening a session ID that is already in use.
	ErrSessionExists = errors.New("recording session already open")
)

// session is one recording session. The window belongs to it alone.
type session struct {
	mu        sync.Mutex
	id        string
	window    *smoothing.Window
	startedAt time.Time
	route     []geo.Point
	closed    bool
}

// TrackingService smooths raw GPS samples per recording session, publishes
// the smoothed positions and hands finished routes to the trip hook.
type TrackingService struct {
	// Configuration fields
	samplesTopic  string
	smoothedTopic string
	qos           int
	interval      time.Duration
	deviceID      string

	// Dependencies
	mqttClient     mqtt.MQTTClient
	provider       location.Provider
	filter         *smoothing.Filter
	logger         zerolog.Logger
	onTripComplete func(models.Trip)
	now            func() time.Time

	// Internal state management
	sessions      cmap.ConcurrentMap[string, *session]
	deviceSession string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewTrackingService creates a TrackingService. provider may be nil when
// samples only arrive over MQTT.
func NewTrackingService(samplesTopic, smoothedTopic string, qos int, interval time.Duration, deviceID string,
	filter *smoothing.Filter, mqttClient mqtt.MQTTClient, provider location.Provider, logger zerolog.Logger) *TrackingService {
	return &TrackingService{
		samplesTopic:  samplesTopic,
		smoothedTopic: smoothedTopic,
		qos:           qos,
		interval:      interval,
		deviceID:      deviceID,
		mqttClient:    mqttClient,
		provider:      provider,
		filter:        filter,
		logger:        logger,
		now:           time.Now,
		sessions:      cmap.New[*session](),
	}
}

// OnTripComplete registers fn to receive every closed session's trip.
func (t *TrackingService) OnTripComplete(fn func(models.Trip)) {
	t.onTripComplete = fn
}

// OpenSession starts a recording session with a fresh window. An empty id
// gets a generated one.
func (t *TrackingService) OpenSession(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s := &session{
		id:        id,
		window:    t.filter.NewWindow(id),
		startedAt: t.now(),
	}
	if !t.sessions.SetIfAbsent(id, s) {
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	t.logger.Info().Str("session_id", id).Msg("Recording session opened")
	return id, nil
}

// Ingest smooths sample within its session, extends the session route and
// publishes the smoothed position. Discarded samples are not published.
func (t *TrackingService) Ingest(sessionID string, sample smoothing.Sample) (smoothing.Result, error) {
	s, ok := t.sessions.Get(sessionID)
	if !ok {
		return smoothing.Result{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return t.ingest(s, sample)
}

// ingest smooths sample within s. A session closed after it was looked up
// no longer takes samples.
func (t *TrackingService) ingest(s *session, sample smoothing.Sample) (smoothing.Result, error) {
	sessionID := s.id
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return smoothing.Result{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	res, err := t.filter.Smooth(sessionID, sample, s.window)
	if err == nil && res.Outcome != smoothing.OutcomeDiscarded {
		s.route = append(s.route, res.Estimate)
	}
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	if res.Outcome == smoothing.OutcomeDiscarded {
		return res, nil
	}

	ts := t.now()
	if sample.TimestampMillis > 0 {
		ts = time.UnixMilli(sample.TimestampMillis)
	}
	message := models.SmoothedLocation{
		DeviceID:  t.deviceID,
		SessionID: sessionID,
		Timestamp: ts,
		Latitude:  res.Estimate.Latitude,
		Longitude: res.Estimate.Longitude,
		Accuracy:  res.Sample.AccuracyMeters,
		Outcome:   string(res.Outcome),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return res, fmt.Errorf("failed to serialize smoothed location: %w", err)
	}
	if err := mqtt.PublishJSON(t.mqttClient, t.smoothedTopic, t.qos, payload); err != nil {
		t.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to publish smoothed location")
		return res, err
	}

	t.logger.Debug().
		Str("session_id", sessionID).
		Str("outcome", string(res.Outcome)).
		Float64("latitude", message.Latitude).
		Float64("longitude", message.Longitude).
		Msg("Smoothed location published")
	return res, nil
}

// CloseSession ends a session, discarding its window, and returns its trip.
// The trip is also passed to the hook registered with OnTripComplete.
func (t *TrackingService) CloseSession(id string) (models.Trip, error) {
	s, ok := t.sessions.Pop(id)
	if !ok {
		return models.Trip{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	s.mu.Lock()
	s.closed = true
	trip := models.Trip{
		ID:        s.id,
		DeviceID:  t.deviceID,
		StartedAt: s.startedAt,
		EndedAt:   t.now(),
		Route:     append([]geo.Point(nil), s.route...),
	}
	s.mu.Unlock()

	t.logger.Info().
		Str("session_id", id).
		Int("route_points", len(trip.Route)).
		Dur("duration", trip.EndedAt.Sub(trip.StartedAt)).
		Msg("Recording session closed")

	if t.onTripComplete != nil {
		t.onTripComplete(trip)
	}
	return trip, nil
}

// Stats returns the smoothing outcome counters.
func (t *TrackingService) Stats() smoothing.Stats {
	return t.filter.Stats()
}

// IsOpen reports whether session id is recording.
func (t *TrackingService) IsOpen(id string) bool {
	return t.sessions.Has(id)
}

// OpenSessions returns the number of sessions currently recording.
func (t *TrackingService) OpenSessions() int {
	return t.sessions.Count()
}

// Start subscribes to the samples topic and, with a local provider, begins
// polling it into the device's own session.
func (t *TrackingService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Warn().Msg("TrackingService is already running")
		return errors.New("tracking service is already running")
	}

	if t.samplesTopic != "" {
		token := t.mqttClient.Subscribe(t.samplesTopic, byte(t.qos), t.HandleSample)
		token.Wait()
		if err := token.Error(); err != nil {
			t.logger.Error().Err(err).Str("topic", t.samplesTopic).Msg("Failed to subscribe to MQTT topic")
			return err
		}
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.running = true

	if t.provider != nil {
		id, err := t.OpenSession("")
		if err != nil {
			t.cancel()
			t.running = false
			return err
		}
		t.deviceSession = id

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()

			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := t.pollProvider(); err != nil {
						t.logger.Error().Err(err).Msg("Failed to record device location")
					}
				case <-t.ctx.Done():
					t.logger.Info().Msg("TrackingService provider loop is stopping")
					return
				}
			}
		}()
	}

	t.logger.Info().
		Str("samples_topic", t.samplesTopic).
		Str("smoothed_topic", t.smoothedTopic).
		Bool("local_provider", t.provider != nil).
		Dur("interval", t.interval).
		Msg("TrackingService started")
	return nil
}

// Stop ends the provider loop, unsubscribes and closes every open session so
// their trips reach the hook.
func (t *TrackingService) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		t.logger.Warn().Msg("TrackingService is not running")
		return errors.New("tracking service is not running")
	}

	t.cancel()
	t.wg.Wait()
	t.running = false

	var errs []error
	if t.samplesTopic != "" {
		token := t.mqttClient.Unsubscribe(t.samplesTopic)
		token.Wait()
		if err := token.Error(); err != nil {
			t.logger.Error().Err(err).Str("topic", t.samplesTopic).Msg("Failed to unsubscribe from MQTT topic")
			errs = append(errs, err)
		}
	}

	for _, id := range t.sessions.Keys() {
		if _, err := t.CloseSession(id); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	t.deviceSession = ""

	if t.provider != nil {
		if err := t.provider.Close(); err != nil {
			t.logger.Error().Err(err).Msg("Failed to close location provider")
			errs = append(errs, err)
		}
	}

	t.logger.Info().Msg("TrackingService stopped")
	return errors.Join(errs...)
}

// HandleSample processes one message from the samples topic.
func (t *TrackingService) HandleSample(_ MQTT.Client, msg MQTT.Message) {
	var m models.SampleMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		t.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to decode sample message")
		return
	}

	var err error
	switch m.Type {
	case models.SampleTypeStart:
		_, err = t.OpenSession(m.SessionID)
	case models.SampleTypeSample, "":
		_, err = t.Ingest(m.SessionID, smoothing.Sample{
			Latitude:        m.Latitude,
			Longitude:       m.Longitude,
			AccuracyMeters:  m.Accuracy,
			TimestampMillis: m.TimestampMillis,
		})
	case models.SampleTypeEnd:
		_, err = t.CloseSession(m.SessionID)
	default:
		err = fmt.Errorf("unknown sample message type %q", m.Type)
	}
	if err != nil {
		t.logger.Error().Err(err).Str("session_id", m.SessionID).Str("type", m.Type).Msg("Failed to handle sample message")
	}
}

// pollProvider reads the local provider once and feeds the device session.
func (t *TrackingService) pollProvider() error {
	loc, err := t.provider.GetLocation(t.ctx)
	if err != nil {
		return fmt.Errorf("failed to get location from provider: %w", err)
	}
	_, err = t.Ingest(t.deviceSession, sampleFromLocation(loc, t.now()))
	return err
}

// sampleFromLocation converts a provider reading. A reading without a fix
// has no coordinates.
func sampleFromLocation(loc location.Location, now time.Time) smoothing.Sample {
	ts := loc.Timestamp
	if ts.IsZero() {
		ts = now
	}
	if !loc.Fix {
		return smoothing.Sample{TimestampMillis: ts.UnixMilli()}
	}
	s := smoothing.NewSample(loc.Latitude, loc.Longitude, ts.UnixMilli())
	if loc.Accuracy > 0 {
		s = s.WithAccuracy(loc.Accuracy)
	}
	return s
}
