package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventgraph/application/services"
	domainServices "eventgraph/domain/services"
	"eventgraph/infrastructure/config"
	"eventgraph/infrastructure/messaging"
	"eventgraph/infrastructure/persistence/memory"
	"eventgraph/interfaces/websocket"
	"eventgraph/pkg/auth"
	"eventgraph/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventgraph/domain/events"
)

// noopNotifier satisfies the aggregator's notifier port; display fan-out is
// covered by the websocket package tests.
type noopNotifier struct{}

func (noopNotifier) NotifyAttendeeJoined(events.AttendeeJoinedEvent)     {}
func (noopNotifier) NotifyConnectionFormed(events.ConnectionFormedEvent) {}

// newTestServer wires the full HTTP surface against the in-memory store.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		Environment:   "test",
		QuestionCount: 3,
	}

	store := memory.NewStore(logger)
	bus := messaging.NewNoopBus(logger)
	metrics := observability.NewMetrics("EventGraphTest", nil, false, logger)
	tracer := observability.NewTracer("eventgraph-test", false)

	tokens, err := auth.NewTokenService("test-secret", "eventgraph-test", 0)
	require.NoError(t, err)

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	manager := services.NewAggregatorManager(store, noopNotifier{}, logger)
	t.Cleanup(manager.Shutdown)

	registry := services.NewRegistryService(store, tokens, bus, metrics, logger)
	connections := services.NewConnectionService(store, store.Connections(), bus, metrics, tracer, logger)
	graphs := services.NewGraphQueryService(store, store.Connections(), manager)
	wsServer := websocket.NewServer(hub, graphs, nil, logger)

	router := NewRouter(
		cfg,
		registry,
		connections,
		graphs,
		domainServices.NewQuestionBank(),
		tokens,
		auth.NewTokenBucketLimiter(100, time.Minute),
		wsServer,
		logger,
	)
	return router.Setup()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return decoded
}

func registerAttendee(t *testing.T, handler http.Handler, name string, challengeSet map[string]string) (attendeeID, token string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/register", "", map[string]interface{}{
		"eventId":      "event-1",
		"displayName":  name,
		"challengeSet": challengeSet,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	return body["attendeeId"].(string), body["token"].(string)
}

func TestRouter_RegistrationToConnectionFlow(t *testing.T) {
	handler := newTestServer(t)

	// Register two attendees; Bob gets a single known question so the
	// challenge draw is deterministic.
	_, aliceToken := registerAttendee(t, handler, "Alice", map[string]string{
		"What is my favorite food?": "ramen",
	})
	bobID, _ := registerAttendee(t, handler, "Bob", map[string]string{
		"What is my favorite color?": "blue",
	})

	// Alice fetches a challenge about Bob.
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/challenge?target="+bobID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	challenge := decodeBody(t, rec)
	assert.Equal(t, "Bob", challenge["targetName"])
	assert.Equal(t, "What is my favorite color?", challenge["question"])

	// A wrong answer is rejected but retriable.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/answer", aliceToken, map[string]string{
		"targetId": bobID,
		"question": "What is my favorite color?",
		"answer":   "red",
	})
	assert.Equal(t, http.StatusNotAcceptable, rec.Code, rec.Body.String())

	// The correct answer forms the connection.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/answer", aliceToken, map[string]string{
		"targetId": bobID,
		"question": "What is my favorite color?",
		"answer":   "blue",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	answer := decodeBody(t, rec)
	assert.NotEmpty(t, answer["connectionId"])

	// Submitting again reports the existing edge as a conflict the client
	// can render as success.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/answer", aliceToken, map[string]string{
		"targetId": bobID,
		"question": "What is my favorite color?",
		"answer":   "blue",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	conflict := decodeBody(t, rec)
	assert.Equal(t, "ALREADY_CONNECTED", conflict["errorCode"])

	// The live graph eventually reflects both nodes and the edge.
	require.Eventually(t, func() bool {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/graph?event=event-1", "", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		snapshot := decodeBody(t, rec)
		nodes, _ := snapshot["nodes"].([]interface{})
		edges, _ := snapshot["edges"].([]interface{})
		return len(nodes) == 2 && len(edges) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRouter_WhoAmI(t *testing.T) {
	handler := newTestServer(t)
	attendeeID, token := registerAttendee(t, handler, "Alice", map[string]string{"Q?": "A"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/whoami", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, attendeeID, body["attendeeId"])
	assert.Equal(t, "event-1", body["eventId"])
	assert.Equal(t, "Alice", body["displayName"])
}

func TestRouter_ProtectedEndpointsRequireClaim(t *testing.T) {
	handler := newTestServer(t)

	for _, path := range []string{"/api/v1/whoami", "/api/v1/challenge?target=x"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/answer", "not-a-valid-token", map[string]string{
		"targetId": "x", "question": "q", "answer": "a",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SelfChallengeRejected(t *testing.T) {
	handler := newTestServer(t)
	attendeeID, token := registerAttendee(t, handler, "Alice", map[string]string{"Q?": "A"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/challenge?target="+attendeeID, token, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ChallengeUnknownTarget(t *testing.T) {
	handler := newTestServer(t)
	_, token := registerAttendee(t, handler, "Alice", map[string]string{"Q?": "A"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/challenge?target=no-such-attendee", token, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RegisterValidation(t *testing.T) {
	handler := newTestServer(t)

	// Missing challenge set.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/register", "", map[string]interface{}{
		"eventId":     "event-1",
		"displayName": "Alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestRouter_QuestionsDraw(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/questions", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	questions, ok := body["questions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, questions, 3)
}

func TestRouter_GraphReplay(t *testing.T) {
	handler := newTestServer(t)
	_, aliceToken := registerAttendee(t, handler, "Alice", map[string]string{"QA?": "a"})
	bobID, _ := registerAttendee(t, handler, "Bob", map[string]string{"QB?": "b"})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/answer", aliceToken, map[string]string{
		"targetId": bobID, "question": "QB?", "answer": "b",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Step zero: all attendees, no edges.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/graph/replay?event=event-1&steps=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["steps"])
	assert.Equal(t, float64(1), body["totalSteps"])

	// Full history by default.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/graph/replay?event=event-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["steps"])
}

func TestRouter_GraphRequiresEventParam(t *testing.T) {
	handler := newTestServer(t)

	for _, path := range []string{"/api/v1/graph", "/api/v1/graph/replay", "/api/v1/graph/top"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func newTestServerWithLimiter(t *testing.T, limiter auth.RateLimiter) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{Environment: "test", QuestionCount: 3}
	store := memory.NewStore(logger)
	bus := messaging.NewNoopBus(logger)
	metrics := observability.NewMetrics("EventGraphTest", nil, false, logger)
	tracer := observability.NewTracer("eventgraph-test", false)
	tokens, err := auth.NewTokenService("test-secret", "eventgraph-test", 0)
	require.NoError(t, err)
	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)
	manager := services.NewAggregatorManager(store, noopNotifier{}, logger)
	t.Cleanup(manager.Shutdown)
	registry := services.NewRegistryService(store, tokens, bus, metrics, logger)
	connections := services.NewConnectionService(store, store.Connections(), bus, metrics, tracer, logger)
	graphs := services.NewGraphQueryService(store, store.Connections(), manager)

	return NewRouter(
		cfg, registry, connections, graphs,
		domainServices.NewQuestionBank(), tokens,
		limiter,
		websocket.NewServer(hub, graphs, nil, logger),
		logger,
	).Setup()
}

func registerBody() map[string]interface{} {
	return map[string]interface{}{
		"eventId":      "event-1",
		"displayName":  "Alice",
		"challengeSet": map[string]string{"Q?": "A"},
	}
}

func TestRouter_RegistrationRateLimit(t *testing.T) {
	// A two-token bucket admits two registrations, then throttles.
	handler := newTestServerWithLimiter(t, auth.NewTokenBucketLimiter(2, time.Hour))

	for i := 0; i < 2; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/register", "", registerBody())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/register", "", registerBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_RateLimitSharedAcrossClientPorts(t *testing.T) {
	// Arrange: one token; the same host reconnecting from a new ephemeral
	// port must land in the same bucket.
	handler := newTestServerWithLimiter(t, auth.NewTokenBucketLimiter(1, time.Hour))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		raw, err := json.Marshal(registerBody())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Act / Assert
	require.Equal(t, http.StatusCreated, send("203.0.113.7:1111").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7:2222").Code)

	// A different host gets its own bucket.
	assert.Equal(t, http.StatusCreated, send("203.0.113.8:3333").Code)
}

func TestRouter_HealthEndpoints(t *testing.T) {
	handler := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
