package events

import (
	"time"

	"github.com/google/uuid"
)

// SourceEventGraph identifies this service as the origin of published events.
const SourceEventGraph = "eventgraph.backend"

// Event type constants used as EventBridge detail types and WebSocket message
// types.
const (
	EventTypeAttendeeJoined   = "attendee.joined"
	EventTypeConnectionFormed = "connection.formed"
)

// DomainEvent is the common interface for events published to the bus and
// broadcast to display sessions.
type DomainEvent interface {
	GetEventType() string
	GetAggregateID() string
	GetEventID() string
	GetTimestamp() time.Time
}

// BaseEvent carries the fields shared by all domain events.
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	AggregateID string    `json:"aggregate_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope for an aggregate.
func NewBaseEvent(aggregateID string) BaseEvent {
	return BaseEvent{
		EventID:     uuid.New().String(),
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
	}
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// AttendeeJoinedEvent fires when a new attendee registers. The display name
// is denormalized so consumers can render without a lookup.
type AttendeeJoinedEvent struct {
	BaseEvent
	AttendeeID  string `json:"attendee_id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

func (e AttendeeJoinedEvent) GetEventType() string { return EventTypeAttendeeJoined }

// ConnectionFormedEvent fires when a challenge is answered correctly and a
// new edge lands. Both endpoint names are denormalized for direct display.
type ConnectionFormedEvent struct {
	BaseEvent
	ConnectionID string `json:"connection_id"`
	ParentID     string `json:"parent_id"`
	ChildID      string `json:"child_id"`
	ParentName   string `json:"parent_name"`
	ChildName    string `json:"child_name"`
}

func (e ConnectionFormedEvent) GetEventType() string { return EventTypeConnectionFormed }
