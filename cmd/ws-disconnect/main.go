// Package main implements the WebSocket disconnect Lambda handler. It removes
// the display session record stored by the connect handler.
package main

import (
	"context"
	"log"
	"net/http"
	"os"

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
	connectionID := req.RequestContext.ConnectionID
	gsi1pk := "CONN#" + connectionID

	// The connect handler mirrors the key pair into GSI1 so the record can be
	// found here without knowing the event.
	result, err := dbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(connectionsTable),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsi1pk},
		},
	})
	if err != nil {
		log.Printf("ERROR: Failed to look up connection %s: %v", connectionID, err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	for _, item := range result.Items {
		_, err := dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(connectionsTable),
			Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			},
		})
		if err != nil {
			log.Printf("ERROR: Failed to delete connection %s: %v", connectionID, err)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}
	}

	log.Printf("Display session %s detached", connectionID)
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	lambda.Start(handler)
}
