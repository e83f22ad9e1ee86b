package di

import (
	"context"
	"fmt"
	"time"

	appevents "eventgraph/application/events"
	"eventgraph/application/ports"
	"eventgraph/application/services"
	domainServices "eventgraph/domain/services"
	"eventgraph/infrastructure/config"
	"eventgraph/infrastructure/messaging"
	"eventgraph/infrastructure/messaging/eventbridge"
	dynamo "eventgraph/infrastructure/persistence/dynamodb"
	"eventgraph/infrastructure/persistence/memory"
	"eventgraph/interfaces/websocket"
	"eventgraph/pkg/auth"
	"eventgraph/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const metricsNamespace = "EventGraph"

// devJWTSecret is the fallback signing key outside production, where an
// unset JWT_SECRET is a config error.
const devJWTSecret = "local-development-secret"

// ProvideLogger creates the application logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideAWSConfig loads the AWS SDK configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.EnableTracing {
		awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)
	}

	return awsCfg, nil
}

// ProvideDynamoDBClient creates the DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates the EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates the CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *cloudwatch.Client {
	return cloudwatch.NewFromConfig(awsCfg)
}

// ProvideTokenService creates the claim issuer/validator
func ProvideTokenService(cfg *config.Config) (*auth.TokenService, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		secret = devJWTSecret
	}
	return auth.NewTokenService(secret, cfg.JWTIssuer, cfg.ClaimTTL)
}

// ProvideRateLimiter creates the registration rate limiter
func ProvideRateLimiter() auth.RateLimiter {
	return auth.NewTokenBucketLimiter(5, time.Minute)
}

// ProvideQuestionBank creates the icebreaker question catalog
func ProvideQuestionBank() *domainServices.QuestionBank {
	return domainServices.NewQuestionBank()
}

// ProvideMetrics creates the CloudWatch metrics emitter
func ProvideMetrics(client *cloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	return observability.NewMetrics(metricsNamespace, client, cfg.EnableMetrics, logger)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("eventgraph", cfg.EnableTracing)
}

// ProvideStores selects the storage backend. The in-memory store implements
// all three ports itself; the DynamoDB backend pairs the repositories with a
// polling change stream.
func ProvideStores(
	cfg *config.Config,
	client *dynamodb.Client,
	logger *zap.Logger,
) (ports.AttendeeRepository, ports.ConnectionRepository, ports.ChangeStream) {
	if cfg.UseMemoryStore {
		store := memory.NewStore(logger)
		return store, store.Connections(), store
	}

	attendees := dynamo.NewAttendeeRepository(client, cfg.DynamoDBTable, logger)
	connections := dynamo.NewConnectionRepository(client, cfg.DynamoDBTable, logger)
	stream := dynamo.NewPollingChangeStream(attendees, connections, cfg.StreamPollInterval, logger)
	return attendees, connections, stream
}

// ProvideEventBus selects the event bus backend
func ProvideEventBus(
	cfg *config.Config,
	client *awseventbridge.Client,
	logger *zap.Logger,
) ports.EventBus {
	if cfg.UseMemoryStore {
		return messaging.NewNoopBus(logger)
	}
	return eventbridge.NewEventBridgePublisher(client, cfg.EventBusName, logger)
}

// ProvideHub creates the display session hub
func ProvideHub(logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(logger)
}

// ProvideGraphNotifier creates the aggregator-to-WebSocket bridge
func ProvideGraphNotifier(hub *websocket.Hub, logger *zap.Logger) ports.GraphNotifier {
	return appevents.NewWebSocketListener(hub, logger)
}

// ProvideAggregatorManager creates the per-event aggregator manager
func ProvideAggregatorManager(
	stream ports.ChangeStream,
	notifier ports.GraphNotifier,
	logger *zap.Logger,
) *services.AggregatorManager {
	return services.NewAggregatorManager(stream, notifier, logger)
}

// ProvideRegistryService creates the registration service
func ProvideRegistryService(
	attendees ports.AttendeeRepository,
	tokens *auth.TokenService,
	bus ports.EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *services.RegistryService {
	return services.NewRegistryService(attendees, tokens, bus, metrics, logger)
}

// ProvideConnectionService creates the challenge/response service
func ProvideConnectionService(
	attendees ports.AttendeeRepository,
	connections ports.ConnectionRepository,
	bus ports.EventBus,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.ConnectionService {
	return services.NewConnectionService(attendees, connections, bus, metrics, tracer, logger)
}

// ProvideGraphQueryService creates the graph query service
func ProvideGraphQueryService(
	attendees ports.AttendeeRepository,
	connections ports.ConnectionRepository,
	manager *services.AggregatorManager,
) *services.GraphQueryService {
	return services.NewGraphQueryService(attendees, connections, manager)
}

// ProvideWebSocketServer creates the display session server
func ProvideWebSocketServer(
	hub *websocket.Hub,
	graphs *services.GraphQueryService,
	logger *zap.Logger,
) *websocket.Server {
	return websocket.NewServer(hub, graphs, nil, logger)
}
