package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAttendee(id, name string) *entities.Attendee {
	return &entities.Attendee{
		ID:           id,
		EventID:      "event-1",
		DisplayName:  name,
		Role:         entities.RoleAudience,
		ChallengeSet: map[string]string{"Q?": "A"},
		CreatedAt:    time.Now(),
	}
}

func testConnection(id, parent, child string) *entities.Connection {
	return &entities.Connection{
		ID:        id,
		EventID:   "event-1",
		ParentID:  parent,
		ChildID:   child,
		Timestamp: time.Now(),
	}
}

func TestStore_SaveAndFindAttendee(t *testing.T) {
	store := NewStore(zap.NewNop())

	require.NoError(t, store.Save(context.Background(), testAttendee("a1", "Alice")))

	found, err := store.FindByID(context.Background(), "event-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", found.DisplayName)

	_, err = store.FindByID(context.Background(), "event-1", "missing")
	assert.ErrorIs(t, err, ports.ErrAttendeeNotFound)
}

func TestStore_ListByEvent_InsertionOrder(t *testing.T) {
	store := NewStore(zap.NewNop())
	require.NoError(t, store.Save(context.Background(), testAttendee("a1", "Alice")))
	require.NoError(t, store.Save(context.Background(), testAttendee("a2", "Bob")))

	all, err := store.ListByEvent(context.Background(), "event-1")

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a1", all[0].ID)
	assert.Equal(t, "a2", all[1].ID)
}

func TestStore_SaveConnection_ConcurrentSamePairHasOneWinner(t *testing.T) {
	// Arrange
	store := NewStore(zap.NewNop())
	repo := store.Connections()

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)

	// Act: race the same ordered pair from many goroutines.
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Save(context.Background(), testConnection(fmt.Sprintf("c-%d", i), "a1", "a2"))
		}(i)
	}
	wg.Wait()

	// Assert: exactly one insert wins, the rest see the duplicate sentinel.
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, errors.Is(err, ports.ErrDuplicateConnection))
		}
	}
	assert.Equal(t, 1, winners)

	all, err := repo.ListByEvent(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_SaveConnection_ReverseDirectionIsDistinct(t *testing.T) {
	store := NewStore(zap.NewNop())
	repo := store.Connections()

	require.NoError(t, repo.Save(context.Background(), testConnection("c1", "a1", "a2")))
	require.NoError(t, repo.Save(context.Background(), testConnection("c2", "a2", "a1")))

	forward, err := repo.FindByPair(context.Background(), "event-1", "a1", "a2")
	require.NoError(t, err)
	assert.Equal(t, "c1", forward.ID)

	reverse, err := repo.FindByPair(context.Background(), "event-1", "a2", "a1")
	require.NoError(t, err)
	assert.Equal(t, "c2", reverse.ID)
}

func TestStore_FindConnectionByPair_NotFound(t *testing.T) {
	store := NewStore(zap.NewNop())

	_, err := store.Connections().FindByPair(context.Background(), "event-1", "a1", "a2")

	assert.ErrorIs(t, err, ports.ErrConnectionNotFound)
}

func TestStore_Subscribe_DeliversInitialBackfill(t *testing.T) {
	// Arrange: state exists before the subscription opens.
	store := NewStore(zap.NewNop())
	require.NoError(t, store.Save(context.Background(), testAttendee("a1", "Alice")))
	require.NoError(t, store.Connections().Save(context.Background(), testConnection("c1", "a1", "a2")))

	// Act
	sub, err := store.Subscribe(context.Background(), "event-1")
	require.NoError(t, err)
	defer sub.Close()

	// Assert
	select {
	case batch := <-sub.Batches():
		assert.True(t, batch.Initial)
		require.Len(t, batch.Attendees, 1)
		assert.Equal(t, "a1", batch.Attendees[0].ID)
		require.Len(t, batch.Connections, 1)
		assert.Equal(t, "c1", batch.Connections[0].ID)
	case <-time.After(time.Second):
		t.Fatal("initial backfill batch was not delivered")
	}
}

func TestStore_Subscribe_InitialBatchDeliveredWhenEmpty(t *testing.T) {
	store := NewStore(zap.NewNop())

	sub, err := store.Subscribe(context.Background(), "event-1")
	require.NoError(t, err)
	defer sub.Close()

	select {
	case batch := <-sub.Batches():
		assert.True(t, batch.Initial)
		assert.Empty(t, batch.Attendees)
		assert.Empty(t, batch.Connections)
	case <-time.After(time.Second):
		t.Fatal("empty initial batch was not delivered")
	}
}

func TestStore_Subscribe_PushesLiveChanges(t *testing.T) {
	store := NewStore(zap.NewNop())
	sub, err := store.Subscribe(context.Background(), "event-1")
	require.NoError(t, err)
	defer sub.Close()

	<-sub.Batches() // drain the initial batch

	require.NoError(t, store.Save(context.Background(), testAttendee("a1", "Alice")))

	select {
	case batch := <-sub.Batches():
		assert.False(t, batch.Initial)
		require.Len(t, batch.Attendees, 1)
		assert.Equal(t, "a1", batch.Attendees[0].ID)
	case <-time.After(time.Second):
		t.Fatal("live change was not delivered")
	}
}

func TestStore_Subscribe_SlowSubscriberIsClosed(t *testing.T) {
	// Arrange: a subscription that never consumes.
	store := NewStore(zap.NewNop())
	sub, err := store.Subscribe(context.Background(), "event-1")
	require.NoError(t, err)

	// Act: overflow the subscription's buffer.
	for i := 0; i < 100; i++ {
		require.NoError(t, store.Save(context.Background(), testAttendee(fmt.Sprintf("a%d", i), "Alice")))
	}

	// Assert: the stream ends instead of silently losing batches, which
	// forces the consumer back through resubscribe-and-rebuild.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Batches():
			if !ok {
				// Saves after the closure must not panic on the removed
				// subscription.
				require.NoError(t, store.Save(context.Background(), testAttendee("late", "Bob")))
				return
			}
		case <-deadline:
			t.Fatal("slow subscription was not closed")
		}
	}
}

func TestStore_Subscribe_CloseIsIdempotent(t *testing.T) {
	store := NewStore(zap.NewNop())
	sub, err := store.Subscribe(context.Background(), "event-1")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	// The channel is closed after Close; saves must not panic on the
	// removed subscription.
	_, open := <-sub.Batches()
	for open {
		_, open = <-sub.Batches()
	}
	require.NoError(t, store.Save(context.Background(), testAttendee("a1", "Alice")))
}
