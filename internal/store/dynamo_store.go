package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/benmeehan/heros-path/internal/discovery"
)

// DynamoPutter is the subset of the DynamoDB client used by DynamoStore.
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// placeItem is the DynamoDB shape of one consolidated place. Items are keyed
// by trip and output position, since unkeyed places have no place ID.
type placeItem struct {
	TripID              string   `dynamodbav:"trip_id"`
	Seq                 int      `dynamodbav:"seq"`
	DeviceID            string   `dynamodbav:"device_id,omitempty"`
	SavedAt             string   `dynamodbav:"saved_at"`
	PlaceID             string   `dynamodbav:"place_id,omitempty"`
	Name                string   `dynamodbav:"name"`
	Types               []string `dynamodbav:"types,omitempty,stringset"`
	Rating              *float64 `dynamodbav:"rating,omitempty"`
	RatingCount         *int     `dynamodbav:"rating_count,omitempty"`
	Address             string   `dynamodbav:"address,omitempty"`
	PrimarySource       string   `dynamodbav:"primary_source"`
	ContributingSources []string `dynamodbav:"contributing_sources"`
	SARCount            int      `dynamodbav:"sar_count"`
	PingCount           int      `dynamodbav:"ping_count"`
}

// DynamoStore writes one item per consolidated place.
type DynamoStore struct {
	client DynamoPutter
	table  string
}

// NewDynamoStore creates a DynamoStore writing to table.
func NewDynamoStore(client DynamoPutter, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// SaveTrip puts every place of record into the table.
func (s *DynamoStore) SaveTrip(ctx context.Context, record TripRecord) error {
	if err := validateTripID(record.TripID); err != nil {
		return err
	}
	savedAt := record.SavedAt.UTC().Format(time.RFC3339)

	for i, p := range record.Places {
		item, err := attributevalue.MarshalMap(toPlaceItem(record, savedAt, i, p))
		if err != nil {
			return fmt.Errorf("failed to marshal place %d of trip %s: %w", i, record.TripID, err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("failed to save place %d of trip %s to DynamoDB: %w", i, record.TripID, err)
		}
	}
	return nil
}

func toPlaceItem(record TripRecord, savedAt string, seq int, p discovery.ConsolidatedPlace) placeItem {
	sources := make([]string, 0, len(p.ContributingSources))
	for _, src := range p.ContributingSources {
		sources = append(sources, string(src))
	}
	return placeItem{
		TripID:              record.TripID,
		Seq:                 seq,
		DeviceID:            record.DeviceID,
		SavedAt:             savedAt,
		PlaceID:             p.PlaceID,
		Name:                p.Name,
		Types:               p.Types,
		Rating:              p.Rating,
		RatingCount:         p.RatingCount,
		Address:             p.Address,
		PrimarySource:       string(p.PrimarySource),
		ContributingSources: sources,
		SARCount:            p.SourceCounts.SAR,
		PingCount:           p.SourceCounts.Ping,
	}
}
