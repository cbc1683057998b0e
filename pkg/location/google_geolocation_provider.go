package location

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// Geolocator is the subset of the Maps client used for geolocation.
type Geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     Geolocator
	modemIndex int
	timeout    time.Duration
	logger     zerolog.Logger

	wifi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	cells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return NewGoogleGeolocationProviderWithClient(c, modemIndex, logger), nil
}

// NewGoogleGeolocationProviderWithClient builds a provider around an existing client.
func NewGoogleGeolocationProviderWithClient(client Geolocator, modemIndex int, logger zerolog.Logger) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:     client,
		modemIndex: modemIndex,
		timeout:    10 * time.Second,
		logger:     logger,
		wifi:       getWiFiAccessPoints,
		cells:      getCellTowers,
	}
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// Missing Wi-Fi or modem tooling only narrows the request down to IP lookup.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	wifiAPs, err := g.wifi(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Wi-Fi access points unavailable for geolocation")
	} else {
		req.WiFiAccessPoints = wifiAPs
	}

	cellTowers, err := g.cells(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Cell towers unavailable for geolocation")
	} else {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Fix:       true,
		Timestamp: time.Now(),
	}, nil
}

// Close is a no-op; the Maps client holds no resources.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
