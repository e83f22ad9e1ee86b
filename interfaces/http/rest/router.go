package rest

import (
	"net"
	"net/http"

	"eventgraph/application/services"
	domainServices "eventgraph/domain/services"
	"eventgraph/infrastructure/config"
	"eventgraph/interfaces/http/rest/handlers"
	"eventgraph/interfaces/http/rest/middleware"
	"eventgraph/interfaces/websocket"
	"eventgraph/pkg/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg         *config.Config
	registry    *services.RegistryService
	connections *services.ConnectionService
	graphs      *services.GraphQueryService
	questions   *domainServices.QuestionBank
	tokens      *auth.TokenService
	limiter     auth.RateLimiter
	wsServer    *websocket.Server
	logger      *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	registry *services.RegistryService,
	connections *services.ConnectionService,
	graphs *services.GraphQueryService,
	questions *domainServices.QuestionBank,
	tokens *auth.TokenService,
	limiter auth.RateLimiter,
	wsServer *websocket.Server,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:         cfg,
		registry:    registry,
		connections: connections,
		graphs:      graphs,
		questions:   questions,
		tokens:      tokens,
		limiter:     limiter,
		wsServer:    wsServer,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health checks
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	registrationHandler := handlers.NewRegistrationHandler(rt.registry, rt.questions, rt.cfg.QuestionCount, rt.logger)
	connectionHandler := handlers.NewConnectionHandler(rt.connections, rt.logger)
	graphHandler := handlers.NewGraphHandler(rt.graphs, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.With(rt.rateLimit).Post("/register", registrationHandler.Register)
		r.Get("/questions", registrationHandler.Questions)
		r.Get("/graph", graphHandler.GetGraph)
		r.Get("/graph/replay", graphHandler.Replay)
		r.Get("/graph/top", graphHandler.TopConnectors)

		// Claim-protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.tokens, rt.logger))
			r.Get("/whoami", registrationHandler.WhoAmI)
			r.Get("/challenge", connectionHandler.GetChallenge)
			r.Post("/answer", connectionHandler.SubmitAnswer)
		})
	})

	// Display session endpoint
	router.Get("/ws", rt.wsServer.HandleWebSocket)

	return router
}

// rateLimit throttles registration by client address. The ephemeral port is
// stripped so reconnecting clients share one bucket.
func (rt *Router) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		allowed, err := rt.limiter.Allow(r.Context(), key)
		if err != nil {
			rt.logger.Warn("Rate limiter failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":true,"message":"too many registration attempts","code":429}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
