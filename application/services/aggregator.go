package services

import (
	"context"
	"sync"
	"time"

	"eventgraph/application/ports"
	"eventgraph/domain/core/aggregates"
	"eventgraph/domain/core/entities"
	"eventgraph/domain/events"
	appErrors "eventgraph/pkg/errors"

	"go.uber.org/zap"
)

const (
	resubscribeBaseDelay = time.Second
	resubscribeMaxDelay  = 30 * time.Second
)

// GraphAggregator maintains the live in-memory graph for one event by
// consuming the store's change stream. Per-item notifications are emitted
// only for additions observed after the initial backfill; the backfill is
// folded into the snapshot silently so a freshly opened display does not
// replay history as live activity.
type GraphAggregator struct {
	eventID  string
	stream   ports.ChangeStream
	notifier ports.GraphNotifier
	logger   *zap.Logger

	mu    sync.RWMutex
	graph *aggregates.Graph
}

// NewGraphAggregator creates an aggregator for a single event.
func NewGraphAggregator(
	eventID string,
	stream ports.ChangeStream,
	notifier ports.GraphNotifier,
	logger *zap.Logger,
) *GraphAggregator {
	return &GraphAggregator{
		eventID:  eventID,
		stream:   stream,
		notifier: notifier,
		logger:   logger.With(zap.String("eventID", eventID)),
		graph:    aggregates.NewGraph(eventID),
	}
}

// Run consumes the change stream until the context is cancelled. When the
// stream drops, the aggregator discards its state and resubscribes with
// backoff; the replacement subscription's initial batch rebuilds the graph
// from the store, so missed items cannot be lost permanently.
func (a *GraphAggregator) Run(ctx context.Context) {
	delay := resubscribeBaseDelay
	for {
		sub, err := a.stream.Subscribe(ctx, a.eventID)
		if err != nil {
			a.logger.Warn("Failed to subscribe to change stream, retrying",
				zap.Error(err),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > resubscribeMaxDelay {
				delay = resubscribeMaxDelay
			}
			continue
		}
		delay = resubscribeBaseDelay

		a.reset()
		a.consume(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		default:
			a.logger.Warn("Change stream ended, resubscribing")
		}
	}
}

func (a *GraphAggregator) consume(ctx context.Context, sub ports.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-sub.Batches():
			if !ok {
				return
			}
			a.apply(batch)
		}
	}
}

func (a *GraphAggregator) reset() {
	a.mu.Lock()
	a.graph = aggregates.NewGraph(a.eventID)
	a.mu.Unlock()
}

// apply folds one change batch into the graph. Malformed records are dropped
// with a warning; one bad record must not take down the live display.
func (a *GraphAggregator) apply(batch ports.ChangeBatch) {
	type joined struct {
		attendee *entities.Attendee
	}
	type formed struct {
		conn       *entities.Connection
		parentName string
		childName  string
	}
	var newAttendees []joined
	var newConnections []formed

	a.mu.Lock()
	for _, attendee := range batch.Attendees {
		if attendee == nil || attendee.Validate() != nil {
			a.logger.Warn("Dropping malformed attendee record from change stream")
			continue
		}
		if a.graph.AddAttendee(attendee) && !batch.Initial {
			newAttendees = append(newAttendees, joined{attendee: attendee})
		}
	}
	for _, conn := range batch.Connections {
		if conn == nil || conn.Validate() != nil {
			a.logger.Warn("Dropping malformed connection record from change stream")
			continue
		}
		if a.graph.AddConnection(conn) && !batch.Initial {
			f := formed{conn: conn}
			if p := a.graph.Attendee(conn.ParentID); p != nil {
				f.parentName = p.DisplayName
			}
			if c := a.graph.Attendee(conn.ChildID); c != nil {
				f.childName = c.DisplayName
			}
			newConnections = append(newConnections, f)
		}
	}
	a.mu.Unlock()

	// Notify outside the lock so a slow notifier cannot stall snapshot reads.
	for _, j := range newAttendees {
		a.notifier.NotifyAttendeeJoined(events.AttendeeJoinedEvent{
			BaseEvent:   events.NewBaseEvent(a.eventID),
			AttendeeID:  j.attendee.ID,
			DisplayName: j.attendee.DisplayName,
			Color:       j.attendee.Color,
		})
	}
	for _, f := range newConnections {
		a.notifier.NotifyConnectionFormed(events.ConnectionFormedEvent{
			BaseEvent:    events.NewBaseEvent(a.eventID),
			ConnectionID: f.conn.ID,
			ParentID:     f.conn.ParentID,
			ChildID:      f.conn.ChildID,
			ParentName:   f.parentName,
			ChildName:    f.childName,
		})
	}
}

// Snapshot returns the current derived graph view.
func (a *GraphAggregator) Snapshot() aggregates.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph.Snapshot()
}

// TopConnectors returns the k most connected attendees in the live graph.
func (a *GraphAggregator) TopConnectors(k int) []aggregates.DegreeEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph.TopByDegree(k)
}

// GraphQueryService answers snapshot, top-connector, and replay queries. Live
// queries are served from per-event aggregators started on first use; replay
// queries rebuild a fresh graph from stored history and never touch live
// state.
type GraphQueryService struct {
	attendees   ports.AttendeeRepository
	connections ports.ConnectionRepository
	manager     *AggregatorManager
}

// NewGraphQueryService creates a graph query service.
func NewGraphQueryService(
	attendees ports.AttendeeRepository,
	connections ports.ConnectionRepository,
	manager *AggregatorManager,
) *GraphQueryService {
	return &GraphQueryService{
		attendees:   attendees,
		connections: connections,
		manager:     manager,
	}
}

// LiveSnapshot returns the current graph for an event, starting its
// aggregator if this is the first query for the event.
func (s *GraphQueryService) LiveSnapshot(ctx context.Context, eventID string) (aggregates.Snapshot, error) {
	agg := s.manager.ForEvent(eventID)
	return agg.Snapshot(), nil
}

// TopConnectors returns the k most connected attendees in the live graph.
func (s *GraphQueryService) TopConnectors(ctx context.Context, eventID string, k int) ([]aggregates.DegreeEntry, error) {
	if k <= 0 {
		return nil, appErrors.NewValidationError("k must be positive")
	}
	agg := s.manager.ForEvent(eventID)
	return agg.TopConnectors(k), nil
}

// ReplayAt rebuilds the graph as it stood after the first steps connections
// in timestamp order. All attendees are present from step zero; only edges
// accumulate. steps beyond the history length yield the full graph.
func (s *GraphQueryService) ReplayAt(ctx context.Context, eventID string, steps int) (aggregates.Snapshot, error) {
	if steps < 0 {
		return aggregates.Snapshot{}, appErrors.NewValidationError("steps must not be negative")
	}

	attendees, err := s.attendees.ListByEvent(ctx, eventID)
	if err != nil {
		return aggregates.Snapshot{}, appErrors.NewDatabaseError("failed to list attendees", err)
	}
	connections, err := s.connections.ListByEvent(ctx, eventID)
	if err != nil {
		return aggregates.Snapshot{}, appErrors.NewDatabaseError("failed to list connections", err)
	}

	graph := aggregates.NewGraph(eventID)
	for _, attendee := range attendees {
		graph.AddAttendee(attendee)
	}
	if steps > len(connections) {
		steps = len(connections)
	}
	for _, conn := range connections[:steps] {
		graph.AddConnection(conn)
	}
	return graph.Snapshot(), nil
}

// ReplayLength returns the number of replayable connection steps for an event.
func (s *GraphQueryService) ReplayLength(ctx context.Context, eventID string) (int, error) {
	connections, err := s.connections.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, appErrors.NewDatabaseError("failed to list connections", err)
	}
	return len(connections), nil
}

// AggregatorManager lazily starts one aggregator per event and owns their
// lifecycles.
type AggregatorManager struct {
	stream   ports.ChangeStream
	notifier ports.GraphNotifier
	logger   *zap.Logger

	mu          sync.Mutex
	aggregators map[string]*GraphAggregator
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewAggregatorManager creates an aggregator manager.
func NewAggregatorManager(
	stream ports.ChangeStream,
	notifier ports.GraphNotifier,
	logger *zap.Logger,
) *AggregatorManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &AggregatorManager{
		stream:      stream,
		notifier:    notifier,
		logger:      logger,
		aggregators: make(map[string]*GraphAggregator),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ForEvent returns the aggregator for an event, starting it on first use.
func (m *AggregatorManager) ForEvent(eventID string) *GraphAggregator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if agg, ok := m.aggregators[eventID]; ok {
		return agg
	}

	agg := NewGraphAggregator(eventID, m.stream, m.notifier, m.logger)
	m.aggregators[eventID] = agg
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		agg.Run(m.ctx)
	}()

	m.logger.Info("Started graph aggregator", zap.String("eventID", eventID))
	return agg
}

// Shutdown stops all aggregators and waits for them to exit.
func (m *AggregatorManager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
