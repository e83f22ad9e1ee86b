package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"eventgraph/domain/core/aggregates"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SnapshotProvider supplies the current graph for an event so a freshly
// attached display can be primed before live broadcasts arrive.
type SnapshotProvider interface {
	LiveSnapshot(ctx context.Context, eventID string) (aggregates.Snapshot, error)
}

// Server handles WebSocket upgrade requests from display sessions. Displays
// are unauthenticated read-only viewers; they name the event they want to
// watch via the "event" query parameter.
type Server struct {
	hub         *Hub
	snapshots   SnapshotProvider
	upgrader    websocket.Upgrader
	maxSessions int
	logger      *zap.Logger
}

// ServerConfig holds WebSocket server configuration.
type ServerConfig struct {
	ReadBufferSize      int
	WriteBufferSize     int
	CheckOrigin         func(r *http.Request) bool
	MaxSessionsPerEvent int
}

// DefaultServerConfig returns default WebSocket server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Displays are public; origin restrictions belong at the edge.
			return true
		},
		MaxSessionsPerEvent: 100,
	}
}

// NewServer creates a new WebSocket server.
func NewServer(hub *Hub, snapshots SnapshotProvider, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	return &Server{
		hub:       hub,
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		maxSessions: config.MaxSessionsPerEvent,
		logger:      logger,
	}
}

// HandleWebSocket upgrades a display session and primes it with the current
// graph snapshot.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		http.Error(w, "event query parameter is required", http.StatusBadRequest)
		return
	}

	if s.hub.GetSessionCount(eventID) >= s.maxSessions {
		s.logger.Warn("Session limit exceeded for event",
			zap.String("eventID", eventID),
			zap.Int("currentSessions", s.hub.GetSessionCount(eventID)),
		)
		http.Error(w, "Session limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(eventID, s.hub, conn, s.logger)
	client.Start()

	s.primeSession(r.Context(), client, eventID)

	s.logger.Info("New display session established",
		zap.String("eventID", eventID),
		zap.String("sessionID", client.GetID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// primeSession delivers the backfilled graph to a new session as a single
// snapshot message. Subsequent live additions arrive as per-item broadcasts.
func (s *Server) primeSession(ctx context.Context, client *Client, eventID string) {
	snapshot, err := s.snapshots.LiveSnapshot(ctx, eventID)
	if err != nil {
		s.logger.Error("Failed to load snapshot for new display session",
			zap.Error(err),
			zap.String("eventID", eventID),
		)
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}

	message, err := json.Marshal(&BroadcastMessage{
		Type:      string(EventGraphSnapshot),
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal snapshot message", zap.Error(err))
		return
	}

	if !client.Send(message) {
		s.logger.Warn("Failed to queue initial snapshot",
			zap.String("eventID", eventID),
			zap.String("sessionID", client.GetID()),
		)
	}
}

// GetHub returns the WebSocket hub.
func (s *Server) GetHub() *Hub {
	return s.hub
}
