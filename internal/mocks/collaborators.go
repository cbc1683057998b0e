package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/benmeehan/heros-path/internal/store"
	"github.com/benmeehan/heros-path/pkg/geo"
	"github.com/benmeehan/heros-path/pkg/location"
	"github.com/benmeehan/heros-path/pkg/places"
	"github.com/stretchr/testify/mock"
)

// MockFileOperations is a mock implementation of the FileOperations interface
type MockFileOperations struct {
	mock.Mock
}

func (m *MockFileOperations) IsFileExists(filePath string) (bool, error) {
	args := m.Called(filePath)
	return args.Bool(0), args.Error(1)
}

func (m *MockFileOperations) ReadFileRaw(filePath string) ([]byte, error) {
	args := m.Called(filePath)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockFileOperations) ReadJsonFile(filePath string, v any) error {
	args := m.Called(filePath, v)
	return args.Error(0)
}

func (m *MockFileOperations) ReadYamlFile(filePath string, v any) error {
	args := m.Called(filePath, v)
	return args.Error(0)
}

func (m *MockFileOperations) WriteJsonFile(filePath string, data any) error {
	args := m.Called(filePath, data)
	return args.Error(0)
}

func (m *MockFileOperations) EnsureDir(dir string) error {
	args := m.Called(dir)
	return args.Error(0)
}

// MockObjectStorage is a mock implementation of s3.ObjectStorageClient
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	args := m.Called(ctx, endpoint, accessKeyID, secretAccessKey, useSSL)
	return args.Error(0)
}

func (m *MockObjectStorage) EnsureBucket(ctx context.Context, bucketName, region string) error {
	args := m.Called(ctx, bucketName, region)
	return args.Error(0)
}

func (m *MockObjectStorage) PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (int64, error) {
	args := m.Called(ctx, bucketName, objectName, data, contentType)
	return args.Get(0).(int64), args.Error(1)
}

// MockDynamoPutter is a mock implementation of store.DynamoPutter
type MockDynamoPutter struct {
	mock.Mock
}

func (m *MockDynamoPutter) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

// MockPlaceStore is a mock implementation of store.PlaceStore
type MockPlaceStore struct {
	mock.Mock
}

func (m *MockPlaceStore) SaveTrip(ctx context.Context, record store.TripRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockLocationProvider is a mock implementation of location.Provider
type MockLocationProvider struct {
	mock.Mock
}

func (m *MockLocationProvider) GetLocation(ctx context.Context) (location.Location, error) {
	args := m.Called(ctx)
	return args.Get(0).(location.Location), args.Error(1)
}

func (m *MockLocationProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSearcher is a mock nearby-search source
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Nearby(ctx context.Context, center geo.Point, radiusMeters uint) ([]places.Place, error) {
	args := m.Called(ctx, center, radiusMeters)
	found, _ := args.Get(0).([]places.Place)
	return found, args.Error(1)
}
