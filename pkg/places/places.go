package places

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/heros-path/pkg/geo"
	"googlemaps.github.io/maps"
)

// ErrInvalidCenter is returned when a search is centred on an unusable coordinate.
var ErrInvalidCenter = errors.New("search center has invalid coordinates")

// PlacesClient is the subset of the Maps client used for place search.
type PlacesClient interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

// Place is a point of interest returned by a nearby search.
type Place struct {
	PlaceID          string
	Name             string
	Types            []string
	Rating           float32
	UserRatingsTotal int
	Address          string
	Location         geo.Point
}

// Options tunes nearby searches.
type Options struct {
	PlaceType string        // Google place type filter, empty for all
	Keyword   string        // free-text keyword filter
	MaxPages  int           // result pages to follow, at least 1
	PageDelay time.Duration // wait before requesting a next page token
}

// GoogleSearcher runs nearby searches against the Google Places API.
type GoogleSearcher struct {
	client PlacesClient
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGoogleSearcher creates a searcher authenticated with apiKey.
func NewGoogleSearcher(apiKey string, opts Options) (*GoogleSearcher, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return NewGoogleSearcherWithClient(c, opts), nil
}

// NewGoogleSearcherWithClient builds a searcher around an existing client.
func NewGoogleSearcherWithClient(client PlacesClient, opts Options) *GoogleSearcher {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = 2 * time.Second
	}
	return &GoogleSearcher{client: client, opts: opts, sleep: sleepContext}
}

// Nearby returns the places within radiusMeters of center.
func (g *GoogleSearcher) Nearby(ctx context.Context, center geo.Point, radiusMeters uint) ([]Place, error) {
	if !center.Valid() {
		return nil, ErrInvalidCenter
	}

	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: center.Latitude, Lng: center.Longitude},
		Radius:   radiusMeters,
		Keyword:  g.opts.Keyword,
		Type:     maps.PlaceType(g.opts.PlaceType),
	}

	var found []Place
	for page := 0; page < g.opts.MaxPages; page++ {
		resp, err := g.client.NearbySearch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("nearby search at %.5f,%.5f: %w", center.Latitude, center.Longitude, err)
		}
		for _, r := range resp.Results {
			found = append(found, fromResult(r))
		}
		if resp.NextPageToken == "" || page+1 == g.opts.MaxPages {
			break
		}
		// next page tokens only become valid after a short delay
		if err := g.sleep(ctx, g.opts.PageDelay); err != nil {
			return found, err
		}
		req = &maps.NearbySearchRequest{PageToken: resp.NextPageToken}
	}
	return found, nil
}

func fromResult(r maps.PlacesSearchResult) Place {
	address := r.FormattedAddress
	if address == "" {
		address = r.Vicinity
	}
	return Place{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		Types:            r.Types,
		Rating:           r.Rating,
		UserRatingsTotal: r.UserRatingsTotal,
		Address:          address,
		Location:         geo.Point{Latitude: r.Geometry.Location.Lat, Longitude: r.Geometry.Location.Lng},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
