package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"

	"go.uber.org/zap"
)

// Store is an in-memory implementation of the attendee and connection
// repositories plus a push-based change stream. It backs local development
// and tests; the single mutex makes connection Save atomic with respect to
// the pair-uniqueness guard, matching the conditional-write semantics of the
// DynamoDB repositories.
type Store struct {
	mu sync.Mutex

	// eventID -> attendeeID -> attendee
	attendees map[string]map[string]*entities.Attendee
	// eventID -> attendee IDs in insertion order
	attendeeOrder map[string][]string
	// eventID -> ordered pair key -> connection
	connections map[string]map[string]*entities.Connection
	// eventID -> connections in insertion order
	connectionOrder map[string][]*entities.Connection
	// eventID -> open subscriptions
	subscribers map[string]map[*subscription]bool

	logger *zap.Logger
}

var (
	_ ports.AttendeeRepository   = (*Store)(nil)
	_ ports.ChangeStream         = (*Store)(nil)
	_ ports.ConnectionRepository = (*ConnectionRepo)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		attendees:       make(map[string]map[string]*entities.Attendee),
		attendeeOrder:   make(map[string][]string),
		connections:     make(map[string]map[string]*entities.Connection),
		connectionOrder: make(map[string][]*entities.Connection),
		subscribers:     make(map[string]map[*subscription]bool),
		logger:          logger,
	}
}

// Save persists an attendee and notifies the event's subscriptions.
func (s *Store) Save(ctx context.Context, attendee *entities.Attendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attendees[attendee.EventID] == nil {
		s.attendees[attendee.EventID] = make(map[string]*entities.Attendee)
	}
	if _, exists := s.attendees[attendee.EventID][attendee.ID]; !exists {
		s.attendeeOrder[attendee.EventID] = append(s.attendeeOrder[attendee.EventID], attendee.ID)
	}
	copied := *attendee
	s.attendees[attendee.EventID][attendee.ID] = &copied

	s.notifyLocked(attendee.EventID, ports.ChangeBatch{Attendees: []*entities.Attendee{&copied}})
	return nil
}

// FindByID fetches one attendee within an event.
func (s *Store) FindByID(ctx context.Context, eventID, attendeeID string) (*entities.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attendee, ok := s.attendees[eventID][attendeeID]
	if !ok {
		return nil, ports.ErrAttendeeNotFound
	}
	copied := *attendee
	return &copied, nil
}

// ListByEvent returns every attendee for an event in insertion order.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]*entities.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*entities.Attendee, 0, len(s.attendeeOrder[eventID]))
	for _, id := range s.attendeeOrder[eventID] {
		copied := *s.attendees[eventID][id]
		result = append(result, &copied)
	}
	return result, nil
}

// SaveConnection inserts a connection edge. The pair index is checked and
// updated under the same lock, so concurrent saves for the same ordered pair
// resolve to exactly one stored edge.
func (s *Store) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	if conn.IsSelfLoop() {
		return fmt.Errorf("refusing to save self-loop connection %s", conn.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connections[conn.EventID] == nil {
		s.connections[conn.EventID] = make(map[string]*entities.Connection)
	}
	if _, exists := s.connections[conn.EventID][conn.PairKey()]; exists {
		return ports.ErrDuplicateConnection
	}

	copied := *conn
	s.connections[conn.EventID][conn.PairKey()] = &copied
	s.connectionOrder[conn.EventID] = append(s.connectionOrder[conn.EventID], &copied)

	s.notifyLocked(conn.EventID, ports.ChangeBatch{Connections: []*entities.Connection{&copied}})
	return nil
}

// FindConnectionByPair fetches the edge for an ordered (parent, child) pair.
func (s *Store) FindConnectionByPair(ctx context.Context, eventID, parentID, childID string) (*entities.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[eventID][entities.PairKey(parentID, childID)]
	if !ok {
		return nil, ports.ErrConnectionNotFound
	}
	copied := *conn
	return &copied, nil
}

// ListConnectionsByEvent returns every edge for an event ordered by timestamp
// ascending.
func (s *Store) ListConnectionsByEvent(ctx context.Context, eventID string) ([]*entities.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*entities.Connection, 0, len(s.connectionOrder[eventID]))
	for _, conn := range s.connectionOrder[eventID] {
		copied := *conn
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Subscribe opens a push subscription for an event. The current state is
// delivered immediately as a single batch marked Initial, even when empty.
func (s *Store) Subscribe(ctx context.Context, eventID string) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		store:   s,
		eventID: eventID,
		batches: make(chan ports.ChangeBatch, 64),
	}
	if s.subscribers[eventID] == nil {
		s.subscribers[eventID] = make(map[*subscription]bool)
	}
	s.subscribers[eventID][sub] = true

	backfill := ports.ChangeBatch{Initial: true}
	for _, id := range s.attendeeOrder[eventID] {
		copied := *s.attendees[eventID][id]
		backfill.Attendees = append(backfill.Attendees, &copied)
	}
	for _, conn := range s.connectionOrder[eventID] {
		copied := *conn
		backfill.Connections = append(backfill.Connections, &copied)
	}
	sub.batches <- backfill

	return sub, nil
}

// notifyLocked fans a batch out to the event's subscriptions. Callers hold
// the store lock, which also serializes delivery order across saves. A
// subscription too slow to accept the batch has missed a change it can never
// recover from this stream, so it is closed; the consumer resubscribes and
// rebuilds from a fresh backfill.
func (s *Store) notifyLocked(eventID string, batch ports.ChangeBatch) {
	for sub := range s.subscribers[eventID] {
		select {
		case sub.batches <- batch:
		default:
			s.logger.Warn("Closing slow subscription",
				zap.String("eventID", eventID),
			)
			s.dropSubscriptionLocked(sub)
		}
	}
}

func (s *Store) removeSubscription(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropSubscriptionLocked(sub)
}

func (s *Store) dropSubscriptionLocked(sub *subscription) {
	if subs, ok := s.subscribers[sub.eventID]; ok && subs[sub] {
		delete(subs, sub)
		close(sub.batches)
		if len(subs) == 0 {
			delete(s.subscribers, sub.eventID)
		}
	}
}

type subscription struct {
	store   *Store
	eventID string
	batches chan ports.ChangeBatch
	once    sync.Once
}

func (s *subscription) Batches() <-chan ports.ChangeBatch {
	return s.batches
}

func (s *subscription) Close() {
	s.once.Do(func() { s.store.removeSubscription(s) })
}

// ConnectionRepo adapts the store to ports.ConnectionRepository. The Save
// method name collides with the attendee repository's, so the connection side
// is exposed through this thin view.
type ConnectionRepo struct {
	store *Store
}

// Connections returns the store's connection repository view.
func (s *Store) Connections() *ConnectionRepo {
	return &ConnectionRepo{store: s}
}

// Save inserts a connection edge.
func (r *ConnectionRepo) Save(ctx context.Context, conn *entities.Connection) error {
	return r.store.SaveConnection(ctx, conn)
}

// FindByPair fetches the edge for an ordered (parent, child) pair.
func (r *ConnectionRepo) FindByPair(ctx context.Context, eventID, parentID, childID string) (*entities.Connection, error) {
	return r.store.FindConnectionByPair(ctx, eventID, parentID, childID)
}

// ListByEvent returns every edge for an event ordered by timestamp ascending.
func (r *ConnectionRepo) ListByEvent(ctx context.Context, eventID string) ([]*entities.Connection, error) {
	return r.store.ListConnectionsByEvent(ctx, eventID)
}
