package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/benmeehan/heros-path/pkg/s3"
)

// ObjectStore uploads one JSON object per trip to an S3-compatible bucket.
type ObjectStore struct {
	client s3.ObjectStorageClient
	bucket string
	prefix string
}

// NewObjectStore creates an ObjectStore. The bucket must already exist.
func NewObjectStore(client s3.ObjectStorageClient, bucket, prefix string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object name used for a trip.
func (s *ObjectStore) Key(deviceID, tripID string) string {
	if deviceID == "" {
		deviceID = "unknown-device"
	}
	return path.Join(s.prefix, deviceID, tripID+".json")
}

// SaveTrip uploads record as JSON.
func (s *ObjectStore) SaveTrip(ctx context.Context, record TripRecord) error {
	if err := validateTripID(record.TripID); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize trip %s: %w", record.TripID, err)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, s.Key(record.DeviceID, record.TripID), data, "application/json"); err != nil {
		return err
	}
	return nil
}
