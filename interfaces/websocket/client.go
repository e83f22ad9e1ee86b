package websocket

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024 // displays send nothing but pongs

	// Send buffer size
	sendBufferSize = 256
)

// Client represents one display session's WebSocket connection.
type Client struct {
	id      string
	eventID string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	logger  *zap.Logger
}

// NewClient creates a display session client for an event.
func NewClient(eventID string, hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:      id,
		eventID: eventID,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		logger: logger.With(
			zap.String("eventID", eventID),
			zap.String("sessionID", id),
		),
	}
}

// Start registers the client with the hub and begins its read and write pumps.
func (c *Client) Start() {
	c.hub.register <- c

	go c.writePump()
	go c.readPump()

	c.sendConnectionEstablished()
}

// Send queues a raw message for this session only. Used to deliver the
// initial snapshot before the session starts receiving broadcasts.
func (c *Client) Send(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.logger.Info("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleTextMessage(message)
		case websocket.BinaryMessage:
			c.logger.Warn("Binary messages not supported")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Info("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

			// Drain queued messages into the same write window
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Error("Failed to write batched message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) handleTextMessage(message []byte) {
	message = bytes.TrimSpace(message)

	// Display sessions are read-only; the only expected inbound traffic is
	// the application-level pong.
	if string(message) == `{"type":"pong"}` {
		c.logger.Debug("Received pong")
		return
	}

	c.logger.Debug("Received message from display session", zap.String("message", string(message)))
}

func (c *Client) sendConnectionEstablished() {
	message := fmt.Sprintf(`{
		"type": "CONNECTION_ESTABLISHED",
		"timestamp": %d,
		"data": {
			"sessionId": "%s",
			"eventId": "%s",
			"message": "WebSocket connection established"
		}
	}`, time.Now().Unix(), c.id, c.eventID)

	select {
	case c.send <- []byte(message):
		c.logger.Info("Sent connection established message")
	default:
		c.logger.Error("Failed to send connection established message")
	}
}

// GetID returns the session's connection ID.
func (c *Client) GetID() string {
	return c.id
}

// GetEventID returns the event this session watches.
func (c *Client) GetEventID() string {
	return c.eventID
}
