package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ConnectionRepository implements ports.ConnectionRepository using DynamoDB.
//
// The sort key encodes the ordered pair, so ordered-pair uniqueness falls out
// of a conditional PutItem: concurrent saves for the same pair race on one
// item and DynamoDB picks exactly one winner.
type ConnectionRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

var _ ports.ConnectionRepository = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new ConnectionRepository
func NewConnectionRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.ConnectionRepository {
	return &ConnectionRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// connectionItem represents the DynamoDB item structure for a connection edge
type connectionItem struct {
	PK            string   `dynamodbav:"PK"`
	SK            string   `dynamodbav:"SK"`
	EntityType    string   `dynamodbav:"EntityType"`
	ConnectionID  string   `dynamodbav:"ConnectionID"`
	EventID       string   `dynamodbav:"EventID"`
	ParentID      string   `dynamodbav:"ParentID"`
	ChildID       string   `dynamodbav:"ChildID"`
	QuestionsUsed []string `dynamodbav:"QuestionsUsed"`
	Timestamp     string   `dynamodbav:"Timestamp"`
}

func connectionPK(eventID string) string {
	return fmt.Sprintf("EVENT#%s", eventID)
}

func connectionSK(parentID, childID string) string {
	return fmt.Sprintf("CONN#%s#%s", parentID, childID)
}

// Save inserts a connection edge with a condition that the ordered pair does
// not already exist. Losers of a concurrent race get ErrDuplicateConnection.
func (r *ConnectionRepository) Save(ctx context.Context, conn *entities.Connection) error {
	if conn.IsSelfLoop() {
		return fmt.Errorf("refusing to save self-loop connection %s", conn.ID)
	}

	item := connectionItem{
		PK:            connectionPK(conn.EventID),
		SK:            connectionSK(conn.ParentID, conn.ChildID),
		EntityType:    "CONNECTION",
		ConnectionID:  conn.ID,
		EventID:       conn.EventID,
		ParentID:      conn.ParentID,
		ChildID:       conn.ChildID,
		QuestionsUsed: conn.QuestionsUsed,
		Timestamp:     conn.Timestamp.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			r.logger.Debug("Connection already exists for pair",
				zap.String("eventID", conn.EventID),
				zap.String("parentID", conn.ParentID),
				zap.String("childID", conn.ChildID),
			)
			return ports.ErrDuplicateConnection
		}
		r.logger.Error("Failed to save connection to DynamoDB",
			zap.Error(err),
			zap.String("connectionID", conn.ID),
			zap.String("eventID", conn.EventID),
		)
		return fmt.Errorf("failed to save connection: %w", err)
	}

	r.logger.Debug("Connection saved to DynamoDB",
		zap.String("connectionID", conn.ID),
		zap.String("eventID", conn.EventID),
		zap.String("parentID", conn.ParentID),
		zap.String("childID", conn.ChildID),
	)

	return nil
}

// FindByPair fetches the edge for an ordered (parent, child) pair.
func (r *ConnectionRepository) FindByPair(ctx context.Context, eventID, parentID, childID string) (*entities.Connection, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: connectionPK(eventID)},
			"SK": &types.AttributeValueMemberS{Value: connectionSK(parentID, childID)},
		},
	}

	result, err := r.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if result.Item == nil {
		return nil, ports.ErrConnectionNotFound
	}

	return r.unmarshalConnection(result.Item)
}

// ListByEvent returns every edge for an event ordered by timestamp ascending.
// The sort key orders by pair, not by time, so the result is re-sorted here.
func (r *ConnectionRepository) ListByEvent(ctx context.Context, eventID string) ([]*entities.Connection, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(connectionPK(eventID))).
		And(expression.Key("SK").BeginsWith("CONN#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	connections := make([]*entities.Connection, 0)
	var lastKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}

		for _, item := range result.Items {
			conn, err := r.unmarshalConnection(item)
			if err != nil {
				r.logger.Warn("Skipping malformed connection item",
					zap.Error(err),
					zap.String("eventID", eventID),
				)
				continue
			}
			connections = append(connections, conn)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	sort.Slice(connections, func(i, j int) bool {
		if !connections[i].Timestamp.Equal(connections[j].Timestamp) {
			return connections[i].Timestamp.Before(connections[j].Timestamp)
		}
		return connections[i].ID < connections[j].ID
	})

	return connections, nil
}

func (r *ConnectionRepository) unmarshalConnection(item map[string]types.AttributeValue) (*entities.Connection, error) {
	var record connectionItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection timestamp: %w", err)
	}

	conn := &entities.Connection{
		ID:            record.ConnectionID,
		EventID:       record.EventID,
		ParentID:      record.ParentID,
		ChildID:       record.ChildID,
		QuestionsUsed: record.QuestionsUsed,
		Timestamp:     timestamp,
	}
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection item: %w", err)
	}
	return conn, nil
}
