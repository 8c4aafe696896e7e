package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	latestSortKey   = "LATEST"
	readingSKPrefix = "READING#"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// readingItem is the single-table layout: partition OWNER#<id>, sort key
// LATEST for the overwritten copy and READING#<ts>#<id> for log entries.
type readingItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	ID        string `dynamodbav:"ID"`
	OwnerID   string `dynamodbav:"OwnerID"`
	Snapshot  string `dynamodbav:"Snapshot"`
	Timestamp string `dynamodbav:"Timestamp,omitempty"`
}

type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoClient builds a client from the default AWS credential chain.
// endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func ownerPK(ownerID string) string {
	return "OWNER#" + ownerID
}

func (s *DynamoStore) AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error) {
	ts := s.now().UTC()
	reading := models.Reading{ID: uuid.NewString(), OwnerID: ownerID, Snapshot: snap.Clone(), Timestamp: &ts}
	sk := readingSKPrefix + ts.Format(timeFormat) + "#" + reading.ID
	if err := s.put(ctx, reading, sk); err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

func (s *DynamoStore) UpsertLatest(ctx context.Context, reading models.Reading) error {
	return s.put(ctx, reading, latestSortKey)
}

func (s *DynamoStore) put(ctx context.Context, reading models.Reading, sk string) error {
	snap, err := json.Marshal(reading.Snapshot)
	if err != nil {
		return err
	}
	item := readingItem{
		PK:       ownerPK(reading.OwnerID),
		SK:       sk,
		ID:       reading.ID,
		OwnerID:  reading.OwnerID,
		Snapshot: string(snap),
	}
	if reading.Timestamp != nil {
		item.Timestamp = reading.Timestamp.UTC().Format(timeFormat)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put reading: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetLatest(ctx context.Context, ownerID string) (models.Reading, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ownerPK(ownerID)},
			"SK": &types.AttributeValueMemberS{Value: latestSortKey},
		},
	})
	if err != nil {
		return models.Reading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	if len(out.Item) == 0 {
		return models.Reading{}, gateway.ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ownerPK(ownerID))).
		And(expression.Key("SK").BeginsWith(readingSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var readings []models.Reading
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query readings: %w", err)
		}
		for _, item := range out.Items {
			r, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			readings = append(readings, r)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return readings, nil
}

func (s *DynamoStore) ListLatest(ctx context.Context) ([]models.Reading, error) {
	filter := expression.Name("SK").Equal(expression.Value(latestSortKey))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan: %w", err)
	}
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var readings []models.Reading
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan latest readings: %w", err)
		}
		for _, item := range out.Items {
			r, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			readings = append(readings, r)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return readings, nil
}

func decodeItem(av map[string]types.AttributeValue) (models.Reading, error) {
	var item readingItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return models.Reading{}, fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	r := models.Reading{ID: item.ID, OwnerID: item.OwnerID}
	if err := json.Unmarshal([]byte(item.Snapshot), &r.Snapshot); err != nil {
		return models.Reading{}, fmt.Errorf("decode snapshot %s: %w", item.ID, err)
	}
	if item.Timestamp != "" {
		if t, err := time.Parse(timeFormat, item.Timestamp); err == nil {
			r.Timestamp = &t
		}
	}
	return r, nil
}
