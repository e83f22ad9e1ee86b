package dynamodb

import (
	"context"
	"sync"
	"time"

	"eventgraph/application/ports"

	"go.uber.org/zap"
)

// PollingChangeStream implements ports.ChangeStream by periodically re-listing
// an event's partition and diffing against what each subscription has already
// seen. The domain is insert-only, so a set difference on IDs is a complete
// change feed.
type PollingChangeStream struct {
	attendees   ports.AttendeeRepository
	connections ports.ConnectionRepository
	interval    time.Duration
	logger      *zap.Logger
}

var _ ports.ChangeStream = (*PollingChangeStream)(nil)

// NewPollingChangeStream creates a polling change stream over the repositories.
func NewPollingChangeStream(
	attendees ports.AttendeeRepository,
	connections ports.ConnectionRepository,
	interval time.Duration,
	logger *zap.Logger,
) *PollingChangeStream {
	return &PollingChangeStream{
		attendees:   attendees,
		connections: connections,
		interval:    interval,
		logger:      logger,
	}
}

// Subscribe opens a subscription for one event. The first delivered batch is
// the backfill of everything currently stored, marked Initial; it is delivered
// even when empty so the consumer knows backfill is complete.
func (s *PollingChangeStream) Subscribe(ctx context.Context, eventID string) (ports.Subscription, error) {
	sub := &pollingSubscription{
		batches: make(chan ports.ChangeBatch, 16),
		done:    make(chan struct{}),
	}

	go s.poll(ctx, eventID, sub)

	return sub, nil
}

func (s *PollingChangeStream) poll(ctx context.Context, eventID string, sub *pollingSubscription) {
	defer close(sub.batches)

	seenAttendees := make(map[string]bool)
	seenConnections := make(map[string]bool)
	initial := true

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		batch, err := s.diff(ctx, eventID, seenAttendees, seenConnections)
		if err != nil {
			s.logger.Warn("Change stream poll failed, will retry",
				zap.Error(err),
				zap.String("eventID", eventID),
			)
		} else {
			batch.Initial = initial
			// The empty initial batch still marks backfill completion;
			// later empty diffs carry no information and are skipped.
			if initial || len(batch.Attendees) > 0 || len(batch.Connections) > 0 {
				select {
				case sub.batches <- batch:
					initial = false
				case <-sub.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case <-ticker.C:
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *PollingChangeStream) diff(
	ctx context.Context,
	eventID string,
	seenAttendees, seenConnections map[string]bool,
) (ports.ChangeBatch, error) {
	attendees, err := s.attendees.ListByEvent(ctx, eventID)
	if err != nil {
		return ports.ChangeBatch{}, err
	}
	connections, err := s.connections.ListByEvent(ctx, eventID)
	if err != nil {
		return ports.ChangeBatch{}, err
	}

	var batch ports.ChangeBatch
	for _, attendee := range attendees {
		if !seenAttendees[attendee.ID] {
			seenAttendees[attendee.ID] = true
			batch.Attendees = append(batch.Attendees, attendee)
		}
	}
	for _, conn := range connections {
		if !seenConnections[conn.ID] {
			seenConnections[conn.ID] = true
			batch.Connections = append(batch.Connections, conn)
		}
	}
	return batch, nil
}

type pollingSubscription struct {
	batches chan ports.ChangeBatch
	done    chan struct{}
	once    sync.Once
}

func (s *pollingSubscription) Batches() <-chan ports.ChangeBatch {
	return s.batches
}

func (s *pollingSubscription) Close() {
	s.once.Do(func() { close(s.done) })
}
