package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benmeehan/heros-path/internal/discovery"
)

// ErrInvalidTripID is returned for trip IDs that cannot name a stored document.
var ErrInvalidTripID = errors.New("invalid trip id")

// TripRecord is the persisted result of one trip's consolidation.
type TripRecord struct {
	TripID   string                        `json:"trip_id"`
	DeviceID string                        `json:"device_id"`
	SavedAt  time.Time                     `json:"saved_at"`
	Places   []discovery.ConsolidatedPlace `json:"places"`
}

// PlaceStore persists consolidated places.
type PlaceStore interface {
	SaveTrip(ctx context.Context, record TripRecord) error
}

func validateTripID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTripID, id)
	}
	return nil
}

// MultiStore writes every record to all of its backends.
type MultiStore struct {
	stores []PlaceStore
}

// NewMultiStore combines stores; nil entries are ignored.
func NewMultiStore(stores ...PlaceStore) *MultiStore {
	m := &MultiStore{}
	for _, s := range stores {
		if s != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// Len returns the number of backends.
func (m *MultiStore) Len() int {
	return len(m.stores)
}

// SaveTrip writes to every backend, continuing past failures.
func (m *MultiStore) SaveTrip(ctx context.Context, record TripRecord) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.SaveTrip(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
