package services

import (
	"context"
	"errors"
	"fmt"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"
	"eventgraph/domain/events"
	"eventgraph/pkg/auth"
	appErrors "eventgraph/pkg/errors"
	"eventgraph/pkg/observability"

	"go.uber.org/zap"
)

// RegistryService creates attendee records and resolves claims back to the
// attendee they were issued for.
type RegistryService struct {
	attendees ports.AttendeeRepository
	tokens    *auth.TokenService
	bus       ports.EventBus
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewRegistryService creates a registry service
func NewRegistryService(
	attendees ports.AttendeeRepository,
	tokens *auth.TokenService,
	bus ports.EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		attendees: attendees,
		tokens:    tokens,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterResult is returned to a newly registered attendee.
type RegisterResult struct {
	AttendeeID string
	Token      string
}

// Identity is the claim-resolved view of an attendee's own record.
type Identity struct {
	AttendeeID  string
	EventID     string
	DisplayName string
}

// Register persists a new attendee and issues a signed claim bound to the
// attendee and event. Re-registration is allowed: a returning attendee who
// lost their claim simply becomes a new, independent node.
func (s *RegistryService) Register(
	ctx context.Context,
	eventID, displayName, color string,
	challengeSet map[string]string,
) (*RegisterResult, error) {
	attendee, err := entities.NewAttendee(eventID, displayName, color, challengeSet)
	if err != nil {
		return nil, appErrors.NewValidationError(err.Error())
	}

	if err := s.attendees.Save(ctx, attendee); err != nil {
		return nil, appErrors.NewDatabaseError("failed to save attendee", err)
	}

	token, err := s.tokens.Issue(attendee.ID, attendee.EventID)
	if err != nil {
		return nil, appErrors.NewInternalError(fmt.Sprintf("failed to issue claim: %v", err))
	}

	joined := events.AttendeeJoinedEvent{
		BaseEvent:   events.NewBaseEvent(attendee.EventID),
		AttendeeID:  attendee.ID,
		DisplayName: attendee.DisplayName,
		Color:       attendee.Color,
	}
	if err := s.bus.Publish(ctx, joined); err != nil {
		// Event publishing is best-effort; registration already succeeded.
		s.logger.Warn("Failed to publish attendee joined event",
			zap.Error(err),
			zap.String("attendeeID", attendee.ID),
			zap.String("eventID", attendee.EventID),
		)
	}

	s.metrics.IncrementAttendeesRegistered(ctx, attendee.EventID)

	s.logger.Info("Attendee registered",
		zap.String("attendeeID", attendee.ID),
		zap.String("eventID", attendee.EventID),
	)

	return &RegisterResult{AttendeeID: attendee.ID, Token: token}, nil
}

// WhoAmI resolves a verified claim to the attendee's own identity. A claim
// whose subject no longer exists surfaces as Unauthorized rather than
// NotFound so valid attendee IDs cannot be probed with forged tokens.
func (s *RegistryService) WhoAmI(ctx context.Context, eventID, attendeeID string) (*Identity, error) {
	attendee, err := s.attendees.FindByID(ctx, eventID, attendeeID)
	if err != nil {
		if errors.Is(err, ports.ErrAttendeeNotFound) {
			return nil, appErrors.NewUnauthorizedError("unknown attendee")
		}
		return nil, appErrors.NewDatabaseError("failed to load attendee", err)
	}

	return &Identity{
		AttendeeID:  attendee.ID,
		EventID:     attendee.EventID,
		DisplayName: attendee.DisplayName,
	}, nil
}
