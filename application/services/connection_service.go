package services

import (
	"context"
	"errors"
	"math/rand"

	"eventgraph/application/ports"
	"eventgraph/domain/core/entities"
	"eventgraph/domain/events"
	appErrors "eventgraph/pkg/errors"
	"eventgraph/pkg/observability"

	"go.uber.org/zap"
)

// CodeAlreadyConnected marks the conflict raised when the ordered pair
// already has an edge. Callers treat it as success-equivalent.
const CodeAlreadyConnected = "ALREADY_CONNECTED"

// Challenge is the question presented to an asker about a target attendee.
// The stored answer is never included.
type Challenge struct {
	TargetID    string
	TargetName  string
	TargetColor string
	Question    string
}

// ConnectionService runs the challenge/response protocol that turns a correct
// answer into a directed, deduplicated connection edge.
type ConnectionService struct {
	attendees   ports.AttendeeRepository
	connections ports.ConnectionRepository
	bus         ports.EventBus
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *zap.Logger
}

// NewConnectionService creates a connection service
func NewConnectionService(
	attendees ports.AttendeeRepository,
	connections ports.ConnectionRepository,
	bus ports.EventBus,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *ConnectionService {
	return &ConnectionService{
		attendees:   attendees,
		connections: connections,
		bus:         bus,
		metrics:     metrics,
		tracer:      tracer,
		logger:      logger,
	}
}

// GetChallenge selects one question uniformly at random from the target's
// challenge set. If the asker is already connected to the target the call
// short-circuits with an ALREADY_CONNECTED conflict carrying the target's
// public profile; the caller treats that as an idempotent read, not a
// failure.
func (s *ConnectionService) GetChallenge(
	ctx context.Context,
	eventID, askerID, targetID string,
) (*Challenge, error) {
	if targetID == askerID {
		return nil, appErrors.NewValidationError("cannot request a challenge about yourself")
	}

	target, err := s.attendees.FindByID(ctx, eventID, targetID)
	if err != nil {
		if errors.Is(err, ports.ErrAttendeeNotFound) {
			return nil, appErrors.NewNotFoundError("target attendee")
		}
		return nil, appErrors.NewDatabaseError("failed to load target attendee", err)
	}

	if existing, err := s.connections.FindByPair(ctx, eventID, askerID, targetID); err == nil {
		return nil, s.alreadyConnected(target, existing.ID)
	} else if !errors.Is(err, ports.ErrConnectionNotFound) {
		return nil, appErrors.NewDatabaseError("failed to check existing connection", err)
	}

	questions := target.Questions()
	if len(questions) == 0 {
		return nil, appErrors.NewValidationError("target attendee has no challenge questions")
	}
	question := questions[rand.Intn(len(questions))]

	return &Challenge{
		TargetID:    target.ID,
		TargetName:  target.DisplayName,
		TargetColor: target.Color,
		Question:    question,
	}, nil
}

// SubmitAnswer validates a guessed answer against the target's stored answer
// and, on an exact match, appends the connection edge. Uniqueness for the
// ordered pair is enforced by the store's conditional insert rather than a
// prior existence check, so two concurrent correct answers still produce
// exactly one edge.
func (s *ConnectionService) SubmitAnswer(
	ctx context.Context,
	eventID, askerID, targetID, question, answer string,
) (connectionID string, err error) {
	err = s.tracer.TraceFunction(ctx, "SubmitAnswer", func(ctx context.Context) error {
		connectionID, err = s.submitAnswer(ctx, eventID, askerID, targetID, question, answer)
		return err
	})
	return connectionID, err
}

func (s *ConnectionService) submitAnswer(
	ctx context.Context,
	eventID, askerID, targetID, question, answer string,
) (string, error) {
	if targetID == askerID {
		return "", appErrors.NewValidationError("cannot answer a challenge about yourself")
	}

	target, err := s.attendees.FindByID(ctx, eventID, targetID)
	if err != nil {
		if errors.Is(err, ports.ErrAttendeeNotFound) {
			return "", appErrors.NewNotFoundError("target attendee")
		}
		return "", appErrors.NewDatabaseError("failed to load target attendee", err)
	}

	if len(target.ChallengeSet) == 0 {
		return "", appErrors.NewValidationError("target attendee has no challenge questions")
	}
	// Guards against a stale or tampered question parameter.
	if !target.HasQuestion(question) {
		return "", appErrors.NewValidationError("question does not belong to the target attendee")
	}

	if !target.AnswerMatches(question, answer) {
		s.metrics.IncrementAnswersRejected(ctx, eventID)
		return "", appErrors.NewAnswerRejectedError("wrong answer")
	}

	conn, err := entities.NewConnection(eventID, askerID, targetID, []string{question})
	if err != nil {
		return "", appErrors.NewValidationError(err.Error())
	}

	if err := s.connections.Save(ctx, conn); err != nil {
		if errors.Is(err, ports.ErrDuplicateConnection) {
			// Lost the race or repeated a successful submission; either way
			// the pair is connected. Surface the existing edge, not an error.
			s.metrics.IncrementDuplicateAttempts(ctx, eventID)
			existingID := ""
			if existing, findErr := s.connections.FindByPair(ctx, eventID, askerID, targetID); findErr == nil {
				existingID = existing.ID
			}
			return "", s.alreadyConnected(target, existingID)
		}
		return "", appErrors.NewDatabaseError("failed to save connection", err)
	}

	asker, err := s.attendees.FindByID(ctx, eventID, askerID)
	askerName := ""
	if err == nil {
		askerName = asker.DisplayName
	}

	formed := events.ConnectionFormedEvent{
		BaseEvent:    events.NewBaseEvent(eventID),
		ConnectionID: conn.ID,
		ParentID:     conn.ParentID,
		ChildID:      conn.ChildID,
		ParentName:   askerName,
		ChildName:    target.DisplayName,
	}
	if err := s.bus.Publish(ctx, formed); err != nil {
		s.logger.Warn("Failed to publish connection formed event",
			zap.Error(err),
			zap.String("connectionID", conn.ID),
			zap.String("eventID", eventID),
		)
	}

	s.metrics.IncrementConnectionsFormed(ctx, eventID)

	s.logger.Info("Connection formed",
		zap.String("connectionID", conn.ID),
		zap.String("eventID", eventID),
		zap.String("parentID", conn.ParentID),
		zap.String("childID", conn.ChildID),
	)

	return conn.ID, nil
}

func (s *ConnectionService) alreadyConnected(target *entities.Attendee, connectionID string) error {
	return appErrors.NewConflictError("already connected to this attendee").
		WithCode(CodeAlreadyConnected).
		WithDetails(map[string]interface{}{
			"connection_id": connectionID,
			"target_id":     target.ID,
			"target_name":   target.DisplayName,
			"target_color":  target.Color,
		})
}
