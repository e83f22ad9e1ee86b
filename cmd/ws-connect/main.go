// Package main implements the WebSocket connect Lambda handler for display
// sessions attached through API Gateway.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var dbClient *dynamodb.Client
var connectionsTable string

func init() {
	connectionsTable = os.Getenv("CONNECTIONS_TABLE_NAME")
	if connectionsTable == "" {
		log.Fatalf("FATAL: Environment variable CONNECTIONS_TABLE_NAME must be set.")
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("Unable to load SDK config, %v", err)
	}
	dbClient = dynamodb.NewFromConfig(awsCfg)
}

func handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	// Displays are public read-only viewers; the only required parameter is
	// the event they want to watch.
	eventID, ok := req.QueryStringParameters["event"]
	if !ok || eventID == "" {
		log.Println("WARN: Connection request missing event parameter.")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}

	connectionID := req.RequestContext.ConnectionID
	// TTL so stale connections clean themselves up after the event ends.
	expireAt := time.Now().Add(12 * time.Hour).Unix()

	pk := "EVENT#" + eventID
	sk := "CONN#" + connectionID

	_, err := dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(connectionsTable),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: pk},
			"SK":       &types.AttributeValueMemberS{Value: sk},
			"GSI1PK":   &types.AttributeValueMemberS{Value: sk}, // For disconnect lookup
			"GSI1SK":   &types.AttributeValueMemberS{Value: pk},
			"expireAt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expireAt)},
		},
	})

	if err != nil {
		log.Printf("ERROR: Failed to save connection to DynamoDB: %v", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	log.Printf("Display session %s attached to event %s", connectionID, eventID)
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	lambda.Start(handler)
}
