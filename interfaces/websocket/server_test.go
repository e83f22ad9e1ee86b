package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventgraph/domain/core/aggregates"
	"eventgraph/domain/events"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// staticSnapshots serves a fixed snapshot for session priming.
type staticSnapshots struct {
	snapshot aggregates.Snapshot
}

func (s *staticSnapshots) LiveSnapshot(ctx context.Context, eventID string) (aggregates.Snapshot, error) {
	return s.snapshot, nil
}

func newWSTestServer(t *testing.T, snapshots SnapshotProvider) (*Hub, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := NewServer(hub, snapshots, nil, logger)
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)
	return hub, ts
}

func dialDisplay(t *testing.T, ts *httptest.Server, eventID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?event=" + eventID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg.Type, msg.Data
}

func TestServer_RequiresEventParam(t *testing.T) {
	_, ts := newWSTestServer(t, &staticSnapshots{})

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_HonorsConfiguredSessionLimit(t *testing.T) {
	// Arrange: a server capped at one display session per event.
	logger := zap.NewNop()
	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	config := DefaultServerConfig()
	config.MaxSessionsPerEvent = 1
	server := NewServer(hub, &staticSnapshots{}, config, logger)
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)

	// Act: fill the only slot, then attempt a second session.
	dialDisplay(t, ts, "event-1")
	require.Eventually(t, func() bool {
		return hub.GetSessionCount("event-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?event=event-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	// Assert
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_PrimesNewSessionWithSnapshot(t *testing.T) {
	// Arrange: the event already has one node when the display attaches.
	snapshots := &staticSnapshots{snapshot: aggregates.Snapshot{
		EventID: "event-1",
		Nodes:   []aggregates.GraphNode{{ID: "a1", Label: "Alice"}},
	}}
	hub, ts := newWSTestServer(t, snapshots)

	// Act
	conn := dialDisplay(t, ts, "event-1")

	// Assert: the handshake message arrives first, then the snapshot.
	msgType, _ := readTyped(t, conn)
	assert.Equal(t, string(EventConnectionEstablished), msgType)

	msgType, data := readTyped(t, conn)
	require.Equal(t, string(EventGraphSnapshot), msgType)

	var snapshot aggregates.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Len(t, snapshot.Nodes, 1)
	assert.Equal(t, "a1", snapshot.Nodes[0].ID)

	require.Eventually(t, func() bool {
		return hub.GetSessionCount("event-1") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_BroadcastReachesOnlyWatchedEvent(t *testing.T) {
	// Arrange: one display per event, both drained past their priming messages.
	hub, ts := newWSTestServer(t, &staticSnapshots{})
	watching := dialDisplay(t, ts, "event-1")
	other := dialDisplay(t, ts, "event-2")
	for _, conn := range []*websocket.Conn{watching, other} {
		readTyped(t, conn) // CONNECTION_ESTABLISHED
		readTyped(t, conn) // GRAPH_SNAPSHOT
	}
	require.Eventually(t, func() bool {
		return hub.GetSessionCount("event-1") == 1 && hub.GetSessionCount("event-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	broadcaster := NewBroadcaster(hub, zap.NewNop())
	broadcaster.BroadcastConnectionFormed(events.ConnectionFormedEvent{
		BaseEvent:    events.NewBaseEvent("event-1"),
		ConnectionID: "c1",
		ParentID:     "a1",
		ChildID:      "a2",
		ParentName:   "Alice",
		ChildName:    "Bob",
	})

	// Assert: the watching display receives the edge.
	msgType, data := readTyped(t, watching)
	require.Equal(t, string(EventConnectionFormed), msgType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "c1", payload["connectionId"])
	assert.Equal(t, "Alice", payload["parentName"])

	// The other event's display hears nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "no broadcast should reach a display watching another event")
}
