package dynamodb

import (
	"context"
	"fmt"
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

// AttendeeRepository implements ports.AttendeeRepository using DynamoDB.
// Attendees share the event's partition so a single Query fetches the whole
// roster.
type AttendeeRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

var _ ports.AttendeeRepository = (*AttendeeRepository)(nil)

// NewAttendeeRepository creates a new AttendeeRepository
func NewAttendeeRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.AttendeeRepository {
	return &AttendeeRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// attendeeItem represents the DynamoDB item structure for an attendee
type attendeeItem struct {
	PK           string            `dynamodbav:"PK"`
	SK           string            `dynamodbav:"SK"`
	EntityType   string            `dynamodbav:"EntityType"`
	AttendeeID   string            `dynamodbav:"AttendeeID"`
	EventID      string            `dynamodbav:"EventID"`
	DisplayName  string            `dynamodbav:"DisplayName"`
	Color        string            `dynamodbav:"Color"`
	Role         string            `dynamodbav:"Role"`
	ChallengeSet map[string]string `dynamodbav:"ChallengeSet"`
	CreatedAt    string            `dynamodbav:"CreatedAt"`
}

func attendeePK(eventID string) string {
	return fmt.Sprintf("EVENT#%s", eventID)
}

func attendeeSK(attendeeID string) string {
	return fmt.Sprintf("ATTENDEE#%s", attendeeID)
}

// Save persists an attendee to DynamoDB.
func (r *AttendeeRepository) Save(ctx context.Context, attendee *entities.Attendee) error {
	item := attendeeItem{
		PK:           attendeePK(attendee.EventID),
		SK:           attendeeSK(attendee.ID),
		EntityType:   "ATTENDEE",
		AttendeeID:   attendee.ID,
		EventID:      attendee.EventID,
		DisplayName:  attendee.DisplayName,
		Color:        attendee.Color,
		Role:         attendee.Role,
		ChallengeSet: attendee.ChallengeSet,
		CreatedAt:    attendee.CreatedAt.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal attendee: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		r.logger.Error("Failed to save attendee to DynamoDB",
			zap.Error(err),
			zap.String("attendeeID", attendee.ID),
			zap.String("eventID", attendee.EventID),
		)
		return fmt.Errorf("failed to save attendee: %w", err)
	}

	r.logger.Debug("Attendee saved to DynamoDB",
		zap.String("attendeeID", attendee.ID),
		zap.String("eventID", attendee.EventID),
	)

	return nil
}

// FindByID fetches one attendee within an event.
func (r *AttendeeRepository) FindByID(ctx context.Context, eventID, attendeeID string) (*entities.Attendee, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: attendeePK(eventID)},
			"SK": &types.AttributeValueMemberS{Value: attendeeSK(attendeeID)},
		},
	}

	result, err := r.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendee: %w", err)
	}
	if result.Item == nil {
		return nil, ports.ErrAttendeeNotFound
	}

	attendee, err := r.unmarshalAttendee(result.Item)
	if err != nil {
		return nil, err
	}
	return attendee, nil
}

// ListByEvent returns every attendee registered for an event.
func (r *AttendeeRepository) ListByEvent(ctx context.Context, eventID string) ([]*entities.Attendee, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(attendeePK(eventID))).
		And(expression.Key("SK").BeginsWith("ATTENDEE#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	attendees := make([]*entities.Attendee, 0)
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
			return nil, fmt.Errorf("failed to query attendees: %w", err)
		}

		for _, item := range result.Items {
			attendee, err := r.unmarshalAttendee(item)
			if err != nil {
				// A single corrupt item must not break the roster.
				r.logger.Warn("Skipping malformed attendee item",
					zap.Error(err),
					zap.String("eventID", eventID),
				)
				continue
			}
			attendees = append(attendees, attendee)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	return attendees, nil
}

func (r *AttendeeRepository) unmarshalAttendee(item map[string]types.AttributeValue) (*entities.Attendee, error) {
	var record attendeeItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attendee: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attendee timestamp: %w", err)
	}

	attendee := &entities.Attendee{
		ID:           record.AttendeeID,
		EventID:      record.EventID,
		DisplayName:  record.DisplayName,
		Color:        record.Color,
		Role:         record.Role,
		ChallengeSet: record.ChallengeSet,
		CreatedAt:    createdAt,
	}
	if err := attendee.Validate(); err != nil {
		return nil, fmt.Errorf("invalid attendee item: %w", err)
	}
	return attendee, nil
}
