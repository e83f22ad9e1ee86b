package di

import (
	"eventgraph/application/ports"
	"eventgraph/application/services"
	domainServices "eventgraph/domain/services"
	"eventgraph/infrastructure/config"
	"eventgraph/interfaces/websocket"
	"eventgraph/pkg/auth"
	"eventgraph/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config            *config.Config
	Logger            *zap.Logger
	AttendeeRepo      ports.AttendeeRepository
	ConnectionRepo    ports.ConnectionRepository
	ChangeStream      ports.ChangeStream
	EventBus          ports.EventBus
	Metrics           *observability.Metrics
	Tracer            *observability.Tracer
	TokenService      *auth.TokenService
	RateLimiter       auth.RateLimiter
	QuestionBank      *domainServices.QuestionBank
	Hub               *websocket.Hub
	GraphNotifier     ports.GraphNotifier
	AggregatorManager *services.AggregatorManager
	RegistryService   *services.RegistryService
	ConnectionService *services.ConnectionService
	GraphQueryService *services.GraphQueryService
	WebSocketServer   *websocket.Server
}

// Shutdown stops background components owned by the container.
func (c *Container) Shutdown() {
	c.AggregatorManager.Shutdown()
	c.Hub.Stop()
}
