package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/benmeehan/heros-path/pkg/file"
)

// FileStore writes one JSON document per trip into a directory.
type FileStore struct {
	dir        string
	fileClient file.FileOperations
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, fileClient file.FileOperations) *FileStore {
	return &FileStore{dir: dir, fileClient: fileClient}
}

// Path returns the document path for tripID.
func (s *FileStore) Path(tripID string) string {
	return filepath.Join(s.dir, tripID+".json")
}

// SaveTrip writes record to <dir>/<trip_id>.json, replacing any earlier version.
func (s *FileStore) SaveTrip(_ context.Context, record TripRecord) error {
	if err := validateTripID(record.TripID); err != nil {
		return err
	}
	if err := s.fileClient.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", s.dir, err)
	}
	if err := s.fileClient.WriteJsonFile(s.Path(record.TripID), record); err != nil {
		return fmt.Errorf("failed to write trip %s: %w", record.TripID, err)
	}
	return nil
}
