package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/heros-path/internal/discovery"
	"github.com/benmeehan/heros-path/internal/models"
	"github.com/benmeehan/heros-path/internal/store"
	"github.com/benmeehan/heros-path/internal/utils"
	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/benmeehan/heros-path/pkg/mqtt"
	"github.com/benmeehan/heros-path/pkg/places"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrAllSearchesFailed is returned when no search along a route succeeded.
	ErrAllSearchesFailed = errors.New("every search along the route failed")
	// ErrDiscoveryNotRunning is returned for work submitted before Start or after Stop.
	ErrDiscoveryNotRunning = errors.New("discovery service is not running")
	// ErrMissingTripID is returned for a ping that names no trip.
	ErrMissingTripID = errors.New("ping request has no trip id")
	// ErrMissingCoordinates is returned for a ping without a position.
	ErrMissingCoordinates = errors.New("ping request has no coordinates")
)

// Searcher finds places around a point.
type Searcher interface {
	Nearby(ctx context.Context, center geo.Point, radiusMeters uint) ([]places.Place, error)
}

// DiscoveryConfig holds the tunables of the discovery service.
type DiscoveryConfig struct {
	SummaryTopic       string
	PingTopic          string
	QOS                int
	DeviceID           string
	PingRadiusMeters   uint
	SARRadiusMeters    uint
	RouteSpacingMeters float64
	Workers            int
	Timeout            time.Duration
	ExcludedTypes      []string
}

// DiscoveryService gathers places found by pings during a trip and by a
// search along the route once the trip ends, consolidates them, stores
// them and publishes a summary.
type DiscoveryService struct {
	cfg      DiscoveryConfig
	excluded map[string]struct{}

	// Dependencies
	searcher   Searcher
	store      store.PlaceStore
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	now        func() time.Time

	// Internal state management
	tripOpen      func(tripID string) bool
	rejectedPings atomic.Uint64
	pings         cmap.ConcurrentMap[string, []discovery.PlaceRecord]
	pool          *utils.WorkerPool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.RWMutex
	running       bool
}

// NewDiscoveryService creates a DiscoveryService. placeStore may be nil to
// skip persistence.
func NewDiscoveryService(cfg DiscoveryConfig, searcher Searcher, placeStore store.PlaceStore,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *DiscoveryService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &DiscoveryService{
		cfg:        cfg,
		excluded:   utils.SliceToSet(cfg.ExcludedTypes),
		searcher:   searcher,
		store:      placeStore,
		mqttClient: mqttClient,
		logger:     logger,
		now:        time.Now,
		pings:      cmap.New[[]discovery.PlaceRecord](),
	}
}

// Start creates the search worker pool and subscribes to ping requests.
func (d *DiscoveryService) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.logger.Warn().Msg("DiscoveryService is already running")
		return errors.New("discovery service is already running")
	}

	if d.cfg.PingTopic != "" {
		token := d.mqttClient.Subscribe(d.cfg.PingTopic, byte(d.cfg.QOS), d.HandlePing)
		token.Wait()
		if err := token.Error(); err != nil {
			d.logger.Error().Err(err).Str("topic", d.cfg.PingTopic).Msg("Failed to subscribe to MQTT topic")
			return err
		}
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.pool = utils.NewWorkerPool(d.cfg.Workers)
	d.running = true

	d.logger.Info().
		Int("workers", d.cfg.Workers).
		Uint("sar_radius_m", d.cfg.SARRadiusMeters).
		Float64("route_spacing_m", d.cfg.RouteSpacingMeters).
		Msg("DiscoveryService started")
	return nil
}

// Stop waits for trips in progress, then releases the worker pool.
func (d *DiscoveryService) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		d.logger.Warn().Msg("DiscoveryService is not running")
		return errors.New("discovery service is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.mu.Lock()
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()
	pool.Shutdown()

	var err error
	if d.cfg.PingTopic != "" {
		token := d.mqttClient.Unsubscribe(d.cfg.PingTopic)
		token.Wait()
		if err = token.Error(); err != nil {
			d.logger.Error().Err(err).Str("topic", d.cfg.PingTopic).Msg("Failed to unsubscribe from MQTT topic")
		}
	}

	d.logger.Info().Msg("DiscoveryService stopped")
	return err
}

// AcceptPingsFor limits pings to trips for which open reports true. It must
// be called before Start.
func (d *DiscoveryService) AcceptPingsFor(open func(tripID string) bool) {
	d.tripOpen = open
}

// RejectedPings returns the number of pings refused before searching.
func (d *DiscoveryService) RejectedPings() uint64 {
	return d.rejectedPings.Load()
}

// Ping searches around point and keeps the results for the trip's
// consolidation. The records found are returned. Pings without a trip ID or
// for a trip that is not recording are refused without a search.
func (d *DiscoveryService) Ping(ctx context.Context, tripID string, point geo.Point) ([]discovery.PlaceRecord, error) {
	if strings.TrimSpace(tripID) == "" {
		d.rejectedPings.Add(1)
		return nil, ErrMissingTripID
	}
	if d.tripOpen != nil && !d.tripOpen(tripID) {
		d.rejectedPings.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, tripID)
	}

	found, err := d.searcher.Nearby(ctx, point, d.cfg.PingRadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("ping search for trip %s failed: %w", tripID, err)
	}

	records := d.toRecords(found, discovery.SourcePing)
	d.pings.Upsert(tripID, records, func(exist bool, valueInMap, newValue []discovery.PlaceRecord) []discovery.PlaceRecord {
		if !exist {
			return newValue
		}
		return append(valueInMap, newValue...)
	})

	d.logger.Debug().Str("trip_id", tripID).Int("places", len(records)).Msg("Ping search completed")
	return records, nil
}

// HandleTrip completes trip in the background. It is meant to be the
// tracking service's trip hook.
func (d *DiscoveryService) HandleTrip(trip models.Trip) {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		d.pings.Remove(trip.ID)
		d.logger.Error().Err(ErrDiscoveryNotRunning).Str("trip_id", trip.ID).Msg("Dropping completed trip")
		return
	}
	d.wg.Add(1)
	ctx := d.ctx
	d.mu.RUnlock()

	go func() {
		defer d.wg.Done()
		if _, err := d.CompleteTrip(ctx, trip); err != nil {
			d.logger.Error().Err(err).Str("trip_id", trip.ID).Msg("Failed to complete trip")
		}
	}()
}

// HandlePing processes one ping request from the app.
func (d *DiscoveryService) HandlePing(_ MQTT.Client, msg MQTT.Message) {
	var req models.PingRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		d.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to decode ping request")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		d.rejectedPings.Add(1)
		d.logger.Warn().Err(ErrMissingCoordinates).Str("trip_id", req.TripID).Msg("Ignoring ping request")
		return
	}

	d.mu.RLock()
	ctx := d.ctx
	d.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	point := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if _, err := d.Ping(ctx, req.TripID, point); err != nil {
		d.logger.Error().Err(err).Str("trip_id", req.TripID).Msg("Failed to handle ping request")
	}
}

// CompleteTrip searches along the trip's route, consolidates those places
// with the trip's pings, persists them and publishes a summary.
func (d *DiscoveryService) CompleteTrip(ctx context.Context, trip models.Trip) ([]discovery.ConsolidatedPlace, error) {
	d.mu.RLock()
	pool := d.pool
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	if trip.DeviceID == "" {
		trip.DeviceID = d.cfg.DeviceID
	}
	points := places.SampleRoute(trip.Route, d.cfg.RouteSpacingMeters)
	var sar []discovery.PlaceRecord
	failed := 0
	if len(points) > 0 {
		if pool == nil {
			return nil, ErrDiscoveryNotRunning
		}
		var err error
		sar, failed, err = d.searchAlongRoute(ctx, pool, points)
		if failed == len(points) {
			return nil, fmt.Errorf("trip %s: %w: %w", trip.ID, ErrAllSearchesFailed, err)
		}
		if failed > 0 {
			d.logger.Warn().Err(err).Str("trip_id", trip.ID).Int("failed", failed).Int("search_points", len(points)).
				Msg("Some searches along the route failed")
		}
	}

	pings, _ := d.pings.Pop(trip.ID)
	consolidated := discovery.Consolidate(sar, pings)

	completedAt := d.now()
	if d.store != nil {
		record := store.TripRecord{
			TripID:   trip.ID,
			DeviceID: trip.DeviceID,
			SavedAt:  completedAt,
			Places:   consolidated,
		}
		if err := d.store.SaveTrip(ctx, record); err != nil {
			return consolidated, fmt.Errorf("failed to save places of trip %s: %w", trip.ID, err)
		}
	}

	summary := summarize(trip, completedAt, len(points), failed, consolidated)
	if err := d.publishSummary(summary); err != nil {
		return consolidated, err
	}

	d.logger.Info().
		Str("trip_id", trip.ID).
		Int("route_points", summary.RoutePoints).
		Int("search_points", summary.SearchPoints).
		Int("places", summary.Places).
		Int("found_by_both", summary.FoundByBoth).
		Msg("Trip discoveries consolidated")
	return consolidated, nil
}

// searchAlongRoute runs one search per point on the pool and returns the
// records in route order.
func (d *DiscoveryService) searchAlongRoute(ctx context.Context, pool *utils.WorkerPool, points []geo.Point) ([]discovery.PlaceRecord, int, error) {
	results := make([][]places.Place, len(points))
	errs := make([]error, len(points))

	var wg sync.WaitGroup
	for i, p := range points {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = d.searcher.Nearby(ctx, p, d.cfg.SARRadiusMeters)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var records []discovery.PlaceRecord
	failed := 0
	for i := range points {
		if errs[i] != nil {
			failed++
			continue
		}
		records = append(records, d.toRecords(results[i], discovery.SourceSAR)...)
	}
	return records, failed, errors.Join(errs...)
}

func (d *DiscoveryService) publishSummary(summary models.TripSummary) error {
	if d.cfg.SummaryTopic == "" || d.mqttClient == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize trip summary: %w", err)
	}
	if err := mqtt.PublishJSON(d.mqttClient, d.cfg.SummaryTopic, d.cfg.QOS, payload); err != nil {
		d.logger.Error().Err(err).Str("trip_id", summary.TripID).Msg("Failed to publish trip summary")
		return err
	}
	return nil
}

func (d *DiscoveryService) timeout() time.Duration {
	if d.cfg.Timeout <= 0 {
		return 2 * time.Minute
	}
	return d.cfg.Timeout
}

// toRecords converts search results, dropping those with an excluded type.
func (d *DiscoveryService) toRecords(found []places.Place, source discovery.Source) []discovery.PlaceRecord {
	records := make([]discovery.PlaceRecord, 0, len(found))
	for _, p := range found {
		if utils.ContainsAny(d.excluded, p.Types) {
			continue
		}
		records = append(records, placeRecord(p, source))
	}
	return records
}

// placeRecord maps a search result. The API reports no rating as zero with
// no reviews, so a rating is present only when either is non-zero.
func placeRecord(p places.Place, source discovery.Source) discovery.PlaceRecord {
	r := discovery.PlaceRecord{
		PlaceID: p.PlaceID,
		Name:    p.Name,
		Types:   append([]string(nil), p.Types...),
		Address: p.Address,
		Source:  source,
	}
	if p.Rating > 0 || p.UserRatingsTotal > 0 {
		r.Rating = discovery.Rating(math.Round(float64(p.Rating)*10) / 10)
		r.RatingCount = discovery.Count(p.UserRatingsTotal)
	}
	return r
}

func summarize(trip models.Trip, completedAt time.Time, searchPoints, failed int, consolidated []discovery.ConsolidatedPlace) models.TripSummary {
	s := models.TripSummary{
		TripID:         trip.ID,
		DeviceID:       trip.DeviceID,
		CompletedAt:    completedAt,
		RoutePoints:    len(trip.Route),
		SearchPoints:   searchPoints,
		FailedSearches: failed,
		Places:         len(consolidated),
	}
	for _, p := range consolidated {
		switch p.PrimarySource {
		case discovery.SourceBoth:
			s.FoundByBoth++
		case discovery.SourceSAR:
			s.FoundBySAR++
		case discovery.SourcePing:
			s.FoundByPing++
		}
	}
	return s
}
