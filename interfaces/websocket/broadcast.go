package websocket

import (
	"fmt"
	"time"

	"eventgraph/domain/core/aggregates"
	"eventgraph/domain/events"

	"go.uber.org/zap"
)

// EventType represents WebSocket event types sent to display sessions.
type EventType string

const (
	// System events
	EventConnectionEstablished EventType = "CONNECTION_ESTABLISHED"
	EventPing                  EventType = "PING"
	EventPong                  EventType = "PONG"
	EventError                 EventType = "ERROR"

	// Domain events
	EventAttendeeJoined   EventType = "ATTENDEE_JOINED"
	EventConnectionFormed EventType = "CONNECTION_FORMED"
	EventGraphSnapshot    EventType = "GRAPH_SNAPSHOT"
)

// Broadcaster pushes graph activity to the display sessions of an event.
type Broadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		logger: logger,
	}
}

// BroadcastAttendeeJoined broadcasts a new node to an event's displays.
func (b *Broadcaster) BroadcastAttendeeJoined(event events.AttendeeJoinedEvent) {
	data := map[string]interface{}{
		"attendeeId":  event.AttendeeID,
		"displayName": event.DisplayName,
		"color":       event.Color,
		"joinedAt":    event.Timestamp.Format(time.RFC3339),
	}

	b.broadcastToEvent(event.AggregateID, EventAttendeeJoined, data)
}

// BroadcastConnectionFormed broadcasts a new edge to an event's displays.
func (b *Broadcaster) BroadcastConnectionFormed(event events.ConnectionFormedEvent) {
	data := map[string]interface{}{
		"connectionId": event.ConnectionID,
		"parentId":     event.ParentID,
		"childId":      event.ChildID,
		"parentName":   event.ParentName,
		"childName":    event.ChildName,
		"formedAt":     event.Timestamp.Format(time.RFC3339),
	}

	b.broadcastToEvent(event.AggregateID, EventConnectionFormed, data)
}

// BroadcastSnapshot pushes a full derived graph to an event's displays.
func (b *Broadcaster) BroadcastSnapshot(eventID string, snapshot aggregates.Snapshot) {
	b.broadcastToEvent(eventID, EventGraphSnapshot, snapshot)
}

// BroadcastDomainEvent broadcasts any domain event.
func (b *Broadcaster) BroadcastDomainEvent(event events.DomainEvent) {
	switch e := event.(type) {
	case events.AttendeeJoinedEvent:
		b.BroadcastAttendeeJoined(e)
	case events.ConnectionFormedEvent:
		b.BroadcastConnectionFormed(e)
	default:
		b.logger.Debug("Unknown event type, not broadcasting",
			zap.String("eventType", fmt.Sprintf("%T", event)),
		)
	}
}

func (b *Broadcaster) broadcastToEvent(eventID string, eventType EventType, data interface{}) {
	if eventID == "" {
		b.logger.Warn("Cannot broadcast to empty event ID",
			zap.String("eventType", string(eventType)),
		)
		return
	}

	err := b.hub.SendToEvent(eventID, string(eventType), data)
	if err != nil {
		b.logger.Error("Failed to broadcast event",
			zap.String("eventID", eventID),
			zap.String("eventType", string(eventType)),
			zap.Error(err),
		)
	} else {
		b.logger.Debug("Event broadcasted",
			zap.String("eventID", eventID),
			zap.String("eventType", string(eventType)),
		)
	}
}

// BroadcastError sends an error message to an event's displays.
func (b *Broadcaster) BroadcastError(eventID string, errorMessage string, details map[string]interface{}) {
	data := map[string]interface{}{
		"error":     errorMessage,
		"details":   details,
		"timestamp": time.Now().Unix(),
	}

	b.broadcastToEvent(eventID, EventError, data)
}
