package discovery

// Source identifies the discovery mechanism that found a place.
type Source string

const (
	// SourceSAR is Search Along Route, run once over the whole recorded path.
	SourceSAR Source = "sar"
	// SourcePing is an on-demand nearby search during a trip.
	SourcePing Source = "ping"
	// SourceBoth marks a consolidated place found by both mechanisms.
	SourceBoth Source = "both"
)

// PlaceRecord is a point of interest as returned by one discovery source.
// Optional numeric fields are nil when the source did not report them.
type PlaceRecord struct {
	PlaceID     string   `json:"place_id,omitempty"`
	Name        string   `json:"name"`
	Types       []string `json:"types,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount *int     `json:"rating_count,omitempty"`
	Address     string   `json:"address,omitempty"`
	Source      Source   `json:"source"`
}

// SourceCounts counts contributing records per source.
type SourceCounts struct {
	SAR  int `json:"sar"`
	Ping int `json:"ping"`
}

// ConsolidatedPlace is the merged view of every record sharing a place ID,
// or a single unkeyed record passed through on its own.
type ConsolidatedPlace struct {
	PlaceID             string       `json:"place_id,omitempty"`
	Name                string       `json:"name"`
	Types               []string     `json:"types,omitempty"`
	Rating              *float64     `json:"rating,omitempty"`
	RatingCount         *int         `json:"rating_count,omitempty"`
	Address             string       `json:"address,omitempty"`
	PrimarySource       Source       `json:"primary_source"`
	ContributingSources []Source     `json:"contributing_sources"`
	SourceCounts        SourceCounts `json:"source_counts"`
}

// Keyed reports whether the place has a usable identifier.
func (c ConsolidatedPlace) Keyed() bool {
	return normalizeID(c.PlaceID) != ""
}

// Record converts c back into a record attributed to source.
func (c ConsolidatedPlace) Record(source Source) PlaceRecord {
	return PlaceRecord{
		PlaceID:     c.PlaceID,
		Name:        c.Name,
		Types:       append([]string(nil), c.Types...),
		Rating:      copyFloat(c.Rating),
		RatingCount: copyInt(c.RatingCount),
		Address:     c.Address,
		Source:      source,
	}
}

// Rating returns a pointer to v, for building records with a present rating.
func Rating(v float64) *float64 { return &v }

// Count returns a pointer to n, for building records with a present rating count.
func Count(n int) *int { return &n }

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
