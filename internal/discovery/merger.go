package discovery

import (
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

// groupKey identifies a merge group. Keyed records share the place ID; each
// unkeyed record gets its own position so it is never merged.
type groupKey struct {
	placeID  string
	position int
}

// Consolidate merges the SAR and ping results of one trip into one entry per
// place ID. Records without a place ID are kept individually. The output
// follows the order in which each group first appears in sarRecords followed
// by pingRecords.
func Consolidate(sarRecords, pingRecords []PlaceRecord) []ConsolidatedPlace {
	groups := orderedmap.NewOrderedMap[groupKey, []PlaceRecord]()

	add := func(position int, r PlaceRecord, source Source) {
		r.Source = source
		key := groupKey{placeID: normalizeID(r.PlaceID)}
		if key.placeID == "" {
			key.position = position
		}
		members, _ := groups.Get(key)
		groups.Set(key, append(members, r))
	}

	position := 0
	for _, r := range sarRecords {
		position++
		add(position, r, SourceSAR)
	}
	for _, r := range pingRecords {
		position++
		add(position, r, SourcePing)
	}

	out := make([]ConsolidatedPlace, 0, groups.Len())
	for el := groups.Front(); el != nil; el = el.Next() {
		out = append(out, merge(el.Key.placeID, el.Value))
	}
	return out
}

// merge folds a non-empty group of records into one place.
func merge(placeID string, members []PlaceRecord) ConsolidatedPlace {
	place := ConsolidatedPlace{PlaceID: placeID}

	seenTypes := make(map[string]struct{})
	for _, r := range members {
		if len(r.Name) > len(place.Name) {
			place.Name = r.Name
		}

		for _, t := range r.Types {
			if _, ok := seenTypes[t]; ok {
				continue
			}
			seenTypes[t] = struct{}{}
			place.Types = append(place.Types, t)
		}

		if r.Rating != nil && (place.Rating == nil || *r.Rating > *place.Rating) {
			place.Rating = copyFloat(r.Rating)
		}
		if r.RatingCount != nil && (place.RatingCount == nil || *r.RatingCount > *place.RatingCount) {
			place.RatingCount = copyInt(r.RatingCount)
		}

		if len(r.Address) > len(place.Address) {
			place.Address = r.Address
		}

		switch r.Source {
		case SourceSAR:
			place.SourceCounts.SAR++
		case SourcePing:
			place.SourceCounts.Ping++
		}
	}

	if place.SourceCounts.SAR > 0 {
		place.ContributingSources = append(place.ContributingSources, SourceSAR)
	}
	if place.SourceCounts.Ping > 0 {
		place.ContributingSources = append(place.ContributingSources, SourcePing)
	}

	switch {
	case place.SourceCounts.SAR > 0 && place.SourceCounts.Ping > 0:
		place.PrimarySource = SourceBoth
	case place.SourceCounts.SAR > 0:
		place.PrimarySource = SourceSAR
	default:
		place.PrimarySource = SourcePing
	}

	return place
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
