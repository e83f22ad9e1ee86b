package ports

import (
	"context"
	"errors"

	"eventgraph/domain/core/entities"
	"eventgraph/domain/events"
)

var (
	// ErrAttendeeNotFound is returned when an attendee does not exist within
	// the requested event.
	ErrAttendeeNotFound = errors.New("attendee not found")

	// ErrConnectionNotFound is returned when no edge exists for an ordered pair.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrDuplicateConnection is returned by the conditional insert when an
	// edge already exists for the ordered (event, parent, child) pair.
	ErrDuplicateConnection = errors.New("connection already exists for this pair")
)

// AttendeeRepository persists attendee records scoped to an event.
type AttendeeRepository interface {
	Save(ctx context.Context, attendee *entities.Attendee) error
	FindByID(ctx context.Context, eventID, attendeeID string) (*entities.Attendee, error)
	ListByEvent(ctx context.Context, eventID string) ([]*entities.Attendee, error)
}

// ConnectionRepository persists connection edges scoped to an event.
//
// Save must be atomic with respect to the ordered-pair uniqueness guard:
// concurrent saves for the same (event, parent, child) key must result in
// exactly one stored edge, with the losers receiving ErrDuplicateConnection.
type ConnectionRepository interface {
	Save(ctx context.Context, conn *entities.Connection) error
	FindByPair(ctx context.Context, eventID, parentID, childID string) (*entities.Connection, error)
	// ListByEvent returns all edges for an event ordered by timestamp ascending.
	ListByEvent(ctx context.Context, eventID string) ([]*entities.Connection, error)
}

// ChangeBatch is one delivery from an event's change stream. Initial marks
// the backfill of pre-existing records delivered at subscribe time, so a
// freshly opened display can distinguish history from live additions.
type ChangeBatch struct {
	Attendees   []*entities.Attendee
	Connections []*entities.Connection
	Initial     bool
}

// Subscription is a cancellable handle on an event's change stream. After
// Close returns, no further batches are delivered and Batches is closed.
type Subscription interface {
	Batches() <-chan ChangeBatch
	Close()
}

// ChangeStream exposes the store's real-time feed of attendee and connection
// additions for a single event.
type ChangeStream interface {
	Subscribe(ctx context.Context, eventID string) (Subscription, error)
}

// EventBus publishes domain events to external consumers.
type EventBus interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, batch []events.DomainEvent) error
}

// GraphNotifier receives per-addition notifications from the aggregator for
// items newly observed after backfill.
type GraphNotifier interface {
	NotifyAttendeeJoined(event events.AttendeeJoinedEvent)
	NotifyConnectionFormed(event events.ConnectionFormedEvent)
}
