package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/heros-path/internal/discovery"
	"github.com/benmeehan/heros-path/internal/mocks"
	"github.com/benmeehan/heros-path/internal/models"
	"github.com/benmeehan/heros-path/internal/services"
	"github.com/benmeehan/heros-path/internal/store"
	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/benmeehan/heros-path/pkg/places"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Three points roughly 330 m apart along a meridian.
var testRoute = []geo.Point{
	{Latitude: 51.5000, Longitude: -0.1200},
	{Latitude: 51.5030, Longitude: -0.1200},
	{Latitude: 51.5060, Longitude: -0.1200},
}

func testDiscoveryConfig() services.DiscoveryConfig {
	return services.DiscoveryConfig{
		SummaryTopic:       "paths/summary",
		QOS:                1,
		DeviceID:           "walker-1",
		PingRadiusMeters:   200,
		SARRadiusMeters:    150,
		RouteSpacingMeters: 250,
		Workers:            2,
		Timeout:            5 * time.Second,
		ExcludedTypes:      []string{"political"},
	}
}

type discoveryFixture struct {
	svc      *services.DiscoveryService
	searcher *mocks.MockSearcher
	store    *mocks.MockPlaceStore
	mqtt     *mocks.MockMQTTClient
	saved    chan store.TripRecord
	summary  chan models.TripSummary
}

func newDiscoveryFixture(t *testing.T, cfg services.DiscoveryConfig) *discoveryFixture {
	f := &discoveryFixture{
		searcher: new(mocks.MockSearcher),
		store:    new(mocks.MockPlaceStore),
		mqtt:     new(mocks.MockMQTTClient),
		saved:    make(chan store.TripRecord, 4),
		summary:  make(chan models.TripSummary, 4),
	}
	f.store.On("SaveTrip", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { f.saved <- args.Get(1).(store.TripRecord) }).
		Return(nil)
	f.mqtt.On("Publish", "paths/summary", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			var s models.TripSummary
			require.NoError(t, json.Unmarshal(args.Get(3).([]byte), &s))
			f.summary <- s
		}).
		Return(mocks.NewDoneToken(nil))
	f.svc = services.NewDiscoveryService(cfg, f.searcher, f.store, f.mqtt, zerolog.Nop())
	return f
}

func cafe() places.Place {
	return places.Place{PlaceID: "cafe-1", Name: "Cafe", Types: []string{"cafe"}, Rating: 4.5, UserRatingsTotal: 12}
}

func TestDiscoveryService_CompleteTrip_NotRunning(t *testing.T) {
	f := newDiscoveryFixture(t, testDiscoveryConfig())

	_, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-1", Route: testRoute})

	assert.ErrorIs(t, err, services.ErrDiscoveryNotRunning)
	f.searcher.AssertNotCalled(t, "Nearby", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscoveryService_CompleteTrip_ConsolidatesPingsAndRoute(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	fountain := places.Place{PlaceID: "fountain-1", Name: "Fountain", Types: []string{"tourist_attraction"}}
	town := places.Place{PlaceID: "town", Name: "Town", Types: []string{"locality", "political"}}

	f.searcher.On("Nearby", mock.Anything, testRoute[1], uint(200)).Return([]places.Place{cafe(), town}, nil)
	f.searcher.On("Nearby", mock.Anything, mock.Anything, uint(150)).Return([]places.Place{cafe(), fountain}, nil)

	require.NoError(t, f.svc.Start())
	defer func() { assert.NoError(t, f.svc.Stop()) }()

	pinged, err := f.svc.Ping(context.Background(), "trip-1", testRoute[1])
	require.NoError(t, err)
	require.Len(t, pinged, 1)

	// Execute
	consolidated, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-1", Route: testRoute})

	// Assert
	require.NoError(t, err)
	require.Len(t, consolidated, 2)
	assert.Equal(t, "cafe-1", consolidated[0].PlaceID)
	assert.Equal(t, discovery.SourceBoth, consolidated[0].PrimarySource)
	assert.Equal(t, discovery.SourceCounts{SAR: 3, Ping: 1}, consolidated[0].SourceCounts)
	require.NotNil(t, consolidated[0].Rating)
	assert.Equal(t, 4.5, *consolidated[0].Rating)
	assert.Equal(t, "fountain-1", consolidated[1].PlaceID)
	assert.Equal(t, discovery.SourceSAR, consolidated[1].PrimarySource)
	assert.Nil(t, consolidated[1].Rating)
	assert.Nil(t, consolidated[1].RatingCount)

	saved := <-f.saved
	assert.Equal(t, "trip-1", saved.TripID)
	assert.Equal(t, "walker-1", saved.DeviceID)
	assert.Equal(t, consolidated, saved.Places)

	summary := <-f.summary
	assert.Equal(t, models.TripSummary{
		TripID:       "trip-1",
		DeviceID:     "walker-1",
		CompletedAt:  summary.CompletedAt,
		RoutePoints:  3,
		SearchPoints: 3,
		Places:       2,
		FoundBySAR:   1,
		FoundByBoth:  1,
	}, summary)
}

func TestDiscoveryService_CompleteTrip_PartialFailure(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, testRoute[0], uint(150)).Return(nil, errors.New("quota exceeded"))
	f.searcher.On("Nearby", mock.Anything, mock.Anything, uint(150)).Return([]places.Place{cafe()}, nil)
	require.NoError(t, f.svc.Start())
	defer func() { assert.NoError(t, f.svc.Stop()) }()

	// Execute
	consolidated, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-2", DeviceID: "phone-7", Route: testRoute})

	// Assert
	require.NoError(t, err)
	require.Len(t, consolidated, 1)
	assert.Equal(t, 2, consolidated[0].SourceCounts.SAR)
	summary := <-f.summary
	assert.Equal(t, 1, summary.FailedSearches)
	assert.Equal(t, "phone-7", summary.DeviceID)
}

func TestDiscoveryService_CompleteTrip_AllSearchesFail(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, mock.Anything, uint(150)).Return(nil, errors.New("quota exceeded"))
	require.NoError(t, f.svc.Start())
	defer func() { assert.NoError(t, f.svc.Stop()) }()

	// Execute
	_, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-3", Route: testRoute})

	// Assert
	assert.ErrorIs(t, err, services.ErrAllSearchesFailed)
	assert.ErrorContains(t, err, "quota exceeded")
	f.store.AssertNotCalled(t, "SaveTrip", mock.Anything, mock.Anything)
}

func TestDiscoveryService_CompleteTrip_EmptyRoute(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())

	// Execute
	consolidated, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-4"})

	// Assert
	require.NoError(t, err)
	assert.Empty(t, consolidated)
	saved := <-f.saved
	assert.Empty(t, saved.Places)
	f.searcher.AssertNotCalled(t, "Nearby", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscoveryService_CompleteTrip_StoreError(t *testing.T) {
	searcher := new(mocks.MockSearcher)
	placeStore := new(mocks.MockPlaceStore)
	placeStore.On("SaveTrip", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	cfg := testDiscoveryConfig()
	cfg.SummaryTopic = ""
	svc := services.NewDiscoveryService(cfg, searcher, placeStore, nil, zerolog.Nop())

	_, err := svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-5"})

	assert.ErrorContains(t, err, "disk full")
}

func TestDiscoveryService_Ping_RatingPresence(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	center := geo.Point{Latitude: 48.85, Longitude: 2.35}
	f.searcher.On("Nearby", mock.Anything, center, uint(200)).Return([]places.Place{
		{PlaceID: "unrated", Name: "New Bakery"},
		{PlaceID: "zero", Name: "Bad Diner", Rating: 0, UserRatingsTotal: 3},
		{PlaceID: "rated", Name: "Bistro", Rating: 4.3, UserRatingsTotal: 80},
	}, nil)

	// Execute
	records, err := f.svc.Ping(context.Background(), "trip-6", center)

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Nil(t, records[0].Rating)
	require.NotNil(t, records[1].Rating)
	assert.Equal(t, 0.0, *records[1].Rating)
	assert.Equal(t, 3, *records[1].RatingCount)
	assert.Equal(t, 4.3, *records[2].Rating)
	for _, r := range records {
		assert.Equal(t, discovery.SourcePing, r.Source)
	}
}

func TestDiscoveryService_Ping_Error(t *testing.T) {
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, mock.Anything, mock.Anything).Return(nil, places.ErrInvalidCenter)

	_, err := f.svc.Ping(context.Background(), "trip-7", geo.Point{Latitude: 91})

	assert.ErrorIs(t, err, places.ErrInvalidCenter)
}

func TestDiscoveryService_HandleTrip_StopWaits(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, mock.Anything, uint(150)).
		After(20*time.Millisecond).
		Return([]places.Place{cafe()}, nil)
	require.NoError(t, f.svc.Start())

	// Execute
	f.svc.HandleTrip(models.Trip{ID: "trip-8", Route: testRoute})
	require.NoError(t, f.svc.Stop())

	// Assert
	require.Len(t, f.saved, 1)
	saved := <-f.saved
	assert.Equal(t, "trip-8", saved.TripID)
	assert.EqualError(t, f.svc.Stop(), "discovery service is not running")
}

func TestDiscoveryService_HandleTrip_NotRunning(t *testing.T) {
	f := newDiscoveryFixture(t, testDiscoveryConfig())

	f.svc.HandleTrip(models.Trip{ID: "trip-9", Route: testRoute})

	f.store.AssertNotCalled(t, "SaveTrip", mock.Anything, mock.Anything)
}

func TestDiscoveryService_HandlePing(t *testing.T) {
	// Setup
	cfg := testDiscoveryConfig()
	cfg.PingTopic = "paths/ping"
	f := newDiscoveryFixture(t, cfg)
	f.mqtt.On("Subscribe", "paths/ping", byte(1), mock.Anything).Return(mocks.NewDoneToken(nil))
	f.mqtt.On("Unsubscribe", []string{"paths/ping"}).Return(mocks.NewDoneToken(nil))
	f.searcher.On("Nearby", mock.Anything, testRoute[0], uint(200)).Return([]places.Place{cafe()}, nil)
	require.NoError(t, f.svc.Start())

	lat, lng := testRoute[0].Latitude, testRoute[0].Longitude
	payload, err := json.Marshal(models.PingRequest{TripID: "trip-10", Latitude: &lat, Longitude: &lng})
	require.NoError(t, err)

	// Execute
	f.svc.HandlePing(nil, mocks.NewMockMessage("paths/ping", payload))
	consolidated, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-10"})

	// Assert
	require.NoError(t, err)
	require.Len(t, consolidated, 1)
	assert.Equal(t, discovery.SourcePing, consolidated[0].PrimarySource)
	require.NoError(t, f.svc.Stop())
	f.mqtt.AssertCalled(t, "Unsubscribe", []string{"paths/ping"})
}

func TestDiscoveryService_HandlePing_MissingCoordinates(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	lat := 51.5

	// Execute
	f.svc.HandlePing(nil, mocks.NewMockMessage("paths/ping", []byte(`{"trip_id":"t"}`)))
	f.svc.HandlePing(nil, mocks.NewMockMessage("paths/ping", []byte(`{"trip_id":"t","latitude":51.5}`)))
	payload, err := json.Marshal(models.PingRequest{TripID: "t", Latitude: &lat})
	require.NoError(t, err)
	f.svc.HandlePing(nil, mocks.NewMockMessage("paths/ping", payload))

	// Assert
	f.searcher.AssertNotCalled(t, "Nearby", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, uint64(3), f.svc.RejectedPings())
}

func TestDiscoveryService_Ping_MissingTripID(t *testing.T) {
	f := newDiscoveryFixture(t, testDiscoveryConfig())

	_, err := f.svc.Ping(context.Background(), "  ", testRoute[0])

	assert.ErrorIs(t, err, services.ErrMissingTripID)
	f.searcher.AssertNotCalled(t, "Nearby", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, uint64(1), f.svc.RejectedPings())
}

func TestDiscoveryService_Ping_TripNotRecording(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, testRoute[0], uint(200)).Return([]places.Place{cafe()}, nil)
	f.svc.AcceptPingsFor(func(tripID string) bool { return tripID == "open-trip" })

	// Execute
	_, unknownErr := f.svc.Ping(context.Background(), "old-trip", testRoute[0])
	records, err := f.svc.Ping(context.Background(), "open-trip", testRoute[0])

	// Assert
	assert.ErrorIs(t, unknownErr, services.ErrUnknownSession)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	f.searcher.AssertNumberOfCalls(t, "Nearby", 1)
}

func TestDiscoveryService_HandleTrip_NotRunningDropsPings(t *testing.T) {
	// Setup
	f := newDiscoveryFixture(t, testDiscoveryConfig())
	f.searcher.On("Nearby", mock.Anything, testRoute[1], uint(200)).Return([]places.Place{cafe()}, nil)
	_, err := f.svc.Ping(context.Background(), "trip-11", testRoute[1])
	require.NoError(t, err)

	// Execute
	f.svc.HandleTrip(models.Trip{ID: "trip-11"})
	require.NoError(t, f.svc.Start())
	defer func() { assert.NoError(t, f.svc.Stop()) }()
	consolidated, err := f.svc.CompleteTrip(context.Background(), models.Trip{ID: "trip-11"})

	// Assert
	require.NoError(t, err)
	assert.Empty(t, consolidated)
}
