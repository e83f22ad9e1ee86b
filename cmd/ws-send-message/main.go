// Package main implements the EventBridge-triggered Lambda that fans graph
// activity out to the display sessions attached through API Gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var dbClient *dynamodb.Client
var apiGatewayManagementClient *apigatewaymanagementapi.Client
var connectionsTable string

func init() {
	connectionsTable = os.Getenv("CONNECTIONS_TABLE_NAME")
	wsApiEndpoint := os.Getenv("WEBSOCKET_API_ENDPOINT")
	awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("Unable to load SDK config, %v", err)
	}
	dbClient = dynamodb.NewFromConfig(awsCfg)
	apiGatewayManagementClient = apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = &wsApiEndpoint
	})
}

// eventDetail carries the fields shared by attendee.joined and
// connection.formed events; AggregateID names the live event.
type eventDetail struct {
	AggregateID string `json:"aggregate_id"`
}

func handler(ctx context.Context, event events.EventBridgeEvent) error {
	var detail eventDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		log.Printf("ERROR: could not unmarshal event detail: %v", err)
		return err
	}
	if detail.AggregateID == "" {
		log.Printf("WARN: event %s has no aggregate id, skipping", event.DetailType)
		return nil
	}

	pk := "EVENT#" + detail.AggregateID
	result, err := dbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(connectionsTable),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: pk},
			":sk_prefix": &types.AttributeValueMemberS{Value: "CONN#"},
		},
	})

	if err != nil {
		log.Printf("ERROR: Failed to query connections for event %s: %v", detail.AggregateID, err)
		return err
	}

	// Forward the full event payload so displays can apply the addition
	// without a refetch.
	message, err := json.Marshal(map[string]interface{}{
		"type": event.DetailType,
		"data": json.RawMessage(event.Detail),
	})
	if err != nil {
		return err
	}

	for _, item := range result.Items {
		connectionID := strings.TrimPrefix(item["SK"].(*types.AttributeValueMemberS).Value, "CONN#")
		_, err := apiGatewayManagementClient.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: &connectionID,
			Data:         message,
		})

		if err != nil {
			var goneErr *apigwTypes.GoneException
			if errors.As(err, &goneErr) {
				log.Printf("Found stale connection, deleting: %s", connectionID)
				dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
					TableName: aws.String(connectionsTable),
					Key: map[string]types.AttributeValue{
						"PK": item["PK"],
						"SK": item["SK"],
					},
				})
			} else {
				log.Printf("ERROR: Failed to post to connection %s: %v", connectionID, err)
			}
		}
	}
	return nil
}

func main() {
	lambda.Start(handler)
}
