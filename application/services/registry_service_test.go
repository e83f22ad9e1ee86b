package services

import (
	"context"
	"sync"
	"testing"

	"eventgraph/domain/events"
	"eventgraph/infrastructure/persistence/memory"
	"eventgraph/pkg/auth"
	appErrors "eventgraph/pkg/errors"
	"eventgraph/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// capturingBus records published events for assertions.
type capturingBus struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (b *capturingBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *capturingBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *capturingBus) published() []events.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.DomainEvent(nil), b.events...)
}

func newTestRegistry(t *testing.T) (*RegistryService, *memory.Store, *auth.TokenService, *capturingBus) {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore(logger)
	tokens, err := auth.NewTokenService("test-secret", "eventgraph-test", 0)
	require.NoError(t, err)
	bus := &capturingBus{}
	metrics := observability.NewMetrics("EventGraphTest", nil, false, logger)

	return NewRegistryService(store, tokens, bus, metrics, logger), store, tokens, bus
}

func TestRegistryService_Register_Success(t *testing.T) {
	// Arrange
	svc, store, tokens, bus := newTestRegistry(t)
	challengeSet := map[string]string{"What is your favorite food?": "ramen"}

	// Act
	result, err := svc.Register(context.Background(), "event-1", "Alice", "#ff8800", challengeSet)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, result.AttendeeID)

	claims, err := tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.AttendeeID, claims.AttendeeID)
	assert.Equal(t, "event-1", claims.EventID)

	saved, err := store.FindByID(context.Background(), "event-1", result.AttendeeID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", saved.DisplayName)

	published := bus.published()
	require.Len(t, published, 1)
	joined, ok := published[0].(events.AttendeeJoinedEvent)
	require.True(t, ok)
	assert.Equal(t, result.AttendeeID, joined.AttendeeID)
	assert.Equal(t, "Alice", joined.DisplayName)
}

func TestRegistryService_Register_InvalidInput(t *testing.T) {
	svc, _, _, _ := newTestRegistry(t)

	_, err := svc.Register(context.Background(), "event-1", "Alice", "", nil)

	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestRegistryService_Register_TwiceCreatesIndependentNodes(t *testing.T) {
	svc, store, _, _ := newTestRegistry(t)
	challengeSet := map[string]string{"Q?": "A"}

	first, err := svc.Register(context.Background(), "event-1", "Alice", "", challengeSet)
	require.NoError(t, err)
	second, err := svc.Register(context.Background(), "event-1", "Alice", "", challengeSet)
	require.NoError(t, err)

	assert.NotEqual(t, first.AttendeeID, second.AttendeeID)
	all, err := store.ListByEvent(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRegistryService_WhoAmI_Success(t *testing.T) {
	svc, _, _, _ := newTestRegistry(t)
	result, err := svc.Register(context.Background(), "event-1", "Bob", "", map[string]string{"Q?": "A"})
	require.NoError(t, err)

	identity, err := svc.WhoAmI(context.Background(), "event-1", result.AttendeeID)

	require.NoError(t, err)
	assert.Equal(t, result.AttendeeID, identity.AttendeeID)
	assert.Equal(t, "event-1", identity.EventID)
	assert.Equal(t, "Bob", identity.DisplayName)
}

func TestRegistryService_WhoAmI_UnknownAttendeeMaskedAsUnauthorized(t *testing.T) {
	svc, _, _, _ := newTestRegistry(t)

	_, err := svc.WhoAmI(context.Background(), "event-1", "no-such-attendee")

	assert.True(t, appErrors.IsUnauthorized(err),
		"a claim whose subject does not exist must not reveal whether the ID was ever valid")
}

func TestRegistryService_WhoAmI_WrongEvent(t *testing.T) {
	svc, _, _, _ := newTestRegistry(t)
	result, err := svc.Register(context.Background(), "event-1", "Bob", "", map[string]string{"Q?": "A"})
	require.NoError(t, err)

	_, err = svc.WhoAmI(context.Background(), "event-2", result.AttendeeID)

	assert.True(t, appErrors.IsUnauthorized(err))
}
