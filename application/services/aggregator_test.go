package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"
	"eventgraph/domain/events"
	"eventgraph/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// capturingNotifier records per-addition notifications for assertions.
type capturingNotifier struct {
	mu     sync.Mutex
	joined []events.AttendeeJoinedEvent
	formed []events.ConnectionFormedEvent
}

func (n *capturingNotifier) NotifyAttendeeJoined(event events.AttendeeJoinedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joined = append(n.joined, event)
}

func (n *capturingNotifier) NotifyConnectionFormed(event events.ConnectionFormedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.formed = append(n.formed, event)
}

func (n *capturingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.joined), len(n.formed)
}

func (n *capturingNotifier) lastFormed() events.ConnectionFormedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.formed[len(n.formed)-1]
}

func seedAttendee(t *testing.T, store *memory.Store, id, name string) *entities.Attendee {
	t.Helper()
	attendee := &entities.Attendee{
		ID:           id,
		EventID:      "event-1",
		DisplayName:  name,
		Role:         entities.RoleAudience,
		ChallengeSet: map[string]string{"Q?": "A"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Save(context.Background(), attendee))
	return attendee
}

func seedConnection(t *testing.T, store *memory.Store, id, parent, child string) {
	t.Helper()
	conn := &entities.Connection{
		ID:        id,
		EventID:   "event-1",
		ParentID:  parent,
		ChildID:   child,
		Timestamp: time.Now(),
	}
	require.NoError(t, store.Connections().Save(context.Background(), conn))
}

func TestGraphAggregator_BackfillIsSilent(t *testing.T) {
	// Arrange: history exists before the aggregator starts.
	store := memory.NewStore(zap.NewNop())
	seedAttendee(t, store, "a1", "Alice")
	seedAttendee(t, store, "a2", "Bob")
	seedConnection(t, store, "c1", "a1", "a2")

	notifier := &capturingNotifier{}
	agg := NewGraphAggregator("event-1", store, notifier, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	// Act: wait for the backfill to land in the snapshot.
	require.Eventually(t, func() bool {
		snap := agg.Snapshot()
		return len(snap.Nodes) == 2 && len(snap.Edges) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Assert: the backfill produced no live notifications.
	joined, formed := notifier.counts()
	assert.Zero(t, joined)
	assert.Zero(t, formed)
}

func TestGraphAggregator_LiveAdditionsNotifyOnce(t *testing.T) {
	store := memory.NewStore(zap.NewNop())
	seedAttendee(t, store, "a1", "Alice")

	notifier := &capturingNotifier{}
	agg := NewGraphAggregator("event-1", store, notifier, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	require.Eventually(t, func() bool {
		return len(agg.Snapshot().Nodes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Act: additions after backfill arrive over the live stream.
	seedAttendee(t, store, "a2", "Bob")
	require.Eventually(t, func() bool {
		joined, _ := notifier.counts()
		return joined == 1
	}, 2*time.Second, 10*time.Millisecond)

	seedConnection(t, store, "c1", "a1", "a2")
	require.Eventually(t, func() bool {
		_, formed := notifier.counts()
		return formed == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Assert: names are denormalized from the graph at notification time.
	formed := notifier.lastFormed()
	assert.Equal(t, "c1", formed.ConnectionID)
	assert.Equal(t, "Alice", formed.ParentName)
	assert.Equal(t, "Bob", formed.ChildName)

	snap := agg.Snapshot()
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
}

func TestGraphAggregator_ApplyDropsMalformedRecords(t *testing.T) {
	notifier := &capturingNotifier{}
	agg := NewGraphAggregator("event-1", memory.NewStore(zap.NewNop()), notifier, zap.NewNop())

	// A nil record and an invalid one must be skipped without panicking.
	agg.apply(ports.ChangeBatch{
		Attendees: []*entities.Attendee{
			nil,
			{ID: "", EventID: "event-1"},
		},
		Connections: []*entities.Connection{
			nil,
			{ID: "c1", EventID: "event-1", ParentID: "a1", ChildID: "a1"},
		},
	})

	snap := agg.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
	joined, formed := notifier.counts()
	assert.Zero(t, joined)
	assert.Zero(t, formed)
}

func newTestGraphQuery(t *testing.T) (*GraphQueryService, *memory.Store, *AggregatorManager) {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	manager := NewAggregatorManager(store, &capturingNotifier{}, zap.NewNop())
	t.Cleanup(manager.Shutdown)
	return NewGraphQueryService(store, store.Connections(), manager), store, manager
}

func TestGraphQueryService_LiveSnapshotStartsAggregator(t *testing.T) {
	svc, store, _ := newTestGraphQuery(t)
	seedAttendee(t, store, "a1", "Alice")

	require.Eventually(t, func() bool {
		snap, err := svc.LiveSnapshot(context.Background(), "event-1")
		return err == nil && len(snap.Nodes) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGraphQueryService_ReplayAt(t *testing.T) {
	// Arrange
	svc, store, _ := newTestGraphQuery(t)
	seedAttendee(t, store, "a1", "Alice")
	seedAttendee(t, store, "a2", "Bob")
	seedAttendee(t, store, "a3", "Carol")
	seedConnection(t, store, "c1", "a1", "a2")
	seedConnection(t, store, "c2", "a2", "a3")

	// Act / Assert: attendees are always all present; edges accumulate.
	atZero, err := svc.ReplayAt(context.Background(), "event-1", 0)
	require.NoError(t, err)
	assert.Len(t, atZero.Nodes, 3)
	assert.Empty(t, atZero.Edges)

	atOne, err := svc.ReplayAt(context.Background(), "event-1", 1)
	require.NoError(t, err)
	require.Len(t, atOne.Edges, 1)
	assert.Equal(t, "c1", atOne.Edges[0].ID)

	// Steps beyond history yield the full graph.
	atMany, err := svc.ReplayAt(context.Background(), "event-1", 100)
	require.NoError(t, err)
	assert.Len(t, atMany.Edges, 2)
}

func TestGraphQueryService_ReplayAt_NegativeSteps(t *testing.T) {
	svc, _, _ := newTestGraphQuery(t)

	_, err := svc.ReplayAt(context.Background(), "event-1", -1)

	assert.Error(t, err)
}

func TestGraphQueryService_ReplayLength(t *testing.T) {
	svc, store, _ := newTestGraphQuery(t)
	seedAttendee(t, store, "a1", "Alice")
	seedAttendee(t, store, "a2", "Bob")
	seedConnection(t, store, "c1", "a1", "a2")

	length, err := svc.ReplayLength(context.Background(), "event-1")

	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestGraphQueryService_TopConnectors_RequiresPositiveK(t *testing.T) {
	svc, _, _ := newTestGraphQuery(t)

	_, err := svc.TopConnectors(context.Background(), "event-1", 0)

	assert.Error(t, err)
}

func TestAggregatorManager_ForEventReturnsSameAggregator(t *testing.T) {
	store := memory.NewStore(zap.NewNop())
	manager := NewAggregatorManager(store, &capturingNotifier{}, zap.NewNop())
	defer manager.Shutdown()

	first := manager.ForEvent("event-1")
	second := manager.ForEvent("event-1")
	other := manager.ForEvent("event-2")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}
