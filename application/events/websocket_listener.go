package events

import (
	"eventgraph/domain/events"
	"eventgraph/interfaces/websocket"

	"go.uber.org/zap"
)

// WebSocketListener forwards aggregator notifications to the display sessions
// of the affected event. It implements ports.GraphNotifier.
type WebSocketListener struct {
	broadcaster *websocket.Broadcaster
	logger      *zap.Logger
	enabled     bool
}

// NewWebSocketListener creates a new WebSocket event listener.
func NewWebSocketListener(hub *websocket.Hub, logger *zap.Logger) *WebSocketListener {
	return &WebSocketListener{
		broadcaster: websocket.NewBroadcaster(hub, logger),
		logger:      logger,
		enabled:     true,
	}
}

// SetEnabled enables or disables the WebSocket listener.
func (l *WebSocketListener) SetEnabled(enabled bool) {
	l.enabled = enabled
	if enabled {
		l.logger.Info("WebSocket event listener enabled")
	} else {
		l.logger.Info("WebSocket event listener disabled")
	}
}

// NotifyAttendeeJoined broadcasts a newly observed attendee.
func (l *WebSocketListener) NotifyAttendeeJoined(event events.AttendeeJoinedEvent) {
	if !l.enabled {
		return
	}

	l.logger.Debug("Broadcasting AttendeeJoined event",
		zap.String("attendeeID", event.AttendeeID),
		zap.String("eventID", event.AggregateID),
	)

	l.broadcaster.BroadcastAttendeeJoined(event)
}

// NotifyConnectionFormed broadcasts a newly observed connection edge.
func (l *WebSocketListener) NotifyConnectionFormed(event events.ConnectionFormedEvent) {
	if !l.enabled {
		return
	}

	l.logger.Debug("Broadcasting ConnectionFormed event",
		zap.String("connectionID", event.ConnectionID),
		zap.String("eventID", event.AggregateID),
	)

	l.broadcaster.BroadcastConnectionFormed(event)
}
