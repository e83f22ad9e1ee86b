package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub maintains active display sessions and fans event-scoped messages out to
// them. Display sessions are read-only viewers keyed by the event they watch;
// one event can have any number of sessions.
type Hub struct {
	// eventID -> set of display sessions
	sessions map[string]map[*Client]bool
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics *HubMetrics
}

// HubMetrics tracks WebSocket fan-out counters.
type HubMetrics struct {
	ActiveSessions int64
	MessagesSent   int64
	MessagesFailed int64
	mu             sync.RWMutex
}

// BroadcastMessage is a message addressed to every display session of one
// event.
type BroadcastMessage struct {
	EventID   string          `json:"-"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewHub creates a new display session hub.
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan *BroadcastMessage, 1000),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		metrics:    &HubMetrics{},
	}
}

// Run starts the hub's main event loop.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllSessions()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToEvent(message)

		case <-ticker.C:
			h.performHealthCheck()
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

// SendToEvent sends a message to every display session watching an event.
func (h *Hub) SendToEvent(eventID string, messageType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	message := &BroadcastMessage{
		EventID:   eventID,
		Type:      messageType,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- message:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.eventID] == nil {
		h.sessions[client.eventID] = make(map[*Client]bool)
	}
	h.sessions[client.eventID][client] = true

	h.metrics.mu.Lock()
	h.metrics.ActiveSessions++
	h.metrics.mu.Unlock()

	h.logger.Info("Display session registered",
		zap.String("eventID", client.eventID),
		zap.String("sessionID", client.id),
		zap.Int("eventSessions", len(h.sessions[client.eventID])),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessions[client.eventID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)

			if len(clients) == 0 {
				delete(h.sessions, client.eventID)
			}

			h.metrics.mu.Lock()
			h.metrics.ActiveSessions--
			h.metrics.mu.Unlock()

			h.logger.Info("Display session unregistered",
				zap.String("eventID", client.eventID),
				zap.String("sessionID", client.id),
				zap.Int("remainingSessions", len(clients)),
			)
		}
	}
}

func (h *Hub) broadcastToEvent(message *BroadcastMessage) {
	h.mu.RLock()
	clients := h.sessions[message.EventID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		h.logger.Debug("No active display sessions for event",
			zap.String("eventID", message.EventID),
			zap.String("messageType", message.Type),
		)
		return
	}

	// Marshal once for all sessions
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message",
			zap.Error(err),
			zap.String("messageType", message.Type),
		)
		return
	}

	successCount := 0
	failCount := 0

	for client := range clients {
		select {
		case client.send <- data:
			successCount++
			h.metrics.mu.Lock()
			h.metrics.MessagesSent++
			h.metrics.mu.Unlock()
		default:
			// Session's send channel is full, drop it
			failCount++
			h.metrics.mu.Lock()
			h.metrics.MessagesFailed++
			h.metrics.mu.Unlock()

			h.logger.Warn("Closing slow display session",
				zap.String("eventID", client.eventID),
				zap.String("sessionID", client.id),
			)

			go func(c *Client) {
				c.hub.unregister <- c
				c.conn.Close()
			}(client)
		}
	}

	h.logger.Debug("Broadcast complete",
		zap.String("eventID", message.EventID),
		zap.String("messageType", message.Type),
		zap.Int("success", successCount),
		zap.Int("failed", failCount),
	)
}

func (h *Hub) performHealthCheck() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	totalSessions := 0
	for eventID, clients := range h.sessions {
		totalSessions += len(clients)
		for client := range clients {
			select {
			case client.send <- []byte(`{"type":"ping"}`):
			default:
				h.logger.Warn("Failed to ping display session",
					zap.String("eventID", eventID),
					zap.String("sessionID", client.id),
				)
			}
		}
	}

	h.logger.Debug("Health check performed",
		zap.Int("totalSessions", totalSessions),
		zap.Int("totalEvents", len(h.sessions)),
	)
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for eventID, clients := range h.sessions {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.sessions, eventID)
	}

	h.logger.Info("All display sessions closed")
}

// GetMetrics returns current hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		ActiveSessions: h.metrics.ActiveSessions,
		MessagesSent:   h.metrics.MessagesSent,
		MessagesFailed: h.metrics.MessagesFailed,
	}
}

// GetSessionCount returns the number of active display sessions for an event.
func (h *Hub) GetSessionCount(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[eventID])
}
