//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"eventgraph/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideTokenService,
	ProvideRateLimiter,
	ProvideQuestionBank,
	ProvideMetrics,
	ProvideTracer,
	ProvideStores,
	ProvideEventBus,
	ProvideHub,
	ProvideGraphNotifier,
	ProvideAggregatorManager,
	ProvideRegistryService,
	ProvideConnectionService,
	ProvideGraphQueryService,
	ProvideWebSocketServer,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
