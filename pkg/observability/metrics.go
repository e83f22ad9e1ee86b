package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes application counters to CloudWatch. Publishing is
// best-effort: failures are logged, never propagated to the request path.
type Metrics struct {
	client    *cloudwatch.Client
	namespace string
	enabled   bool
	logger    *zap.Logger
}

// NewMetrics creates a metrics publisher
func NewMetrics(namespace string, client *cloudwatch.Client, enabled bool, logger *zap.Logger) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		enabled:   enabled,
		logger:    logger,
	}
}

// IncrementAttendeesRegistered records a new attendee registration
func (m *Metrics) IncrementAttendeesRegistered(ctx context.Context, eventID string) {
	m.putCount(ctx, "AttendeesRegistered", eventID)
}

// IncrementConnectionsFormed records a new connection edge
func (m *Metrics) IncrementConnectionsFormed(ctx context.Context, eventID string) {
	m.putCount(ctx, "ConnectionsFormed", eventID)
}

// IncrementAnswersRejected records a wrong-answer attempt
func (m *Metrics) IncrementAnswersRejected(ctx context.Context, eventID string) {
	m.putCount(ctx, "AnswersRejected", eventID)
}

// IncrementDuplicateAttempts records an attempt against an already-connected pair
func (m *Metrics) IncrementDuplicateAttempts(ctx context.Context, eventID string) {
	m.putCount(ctx, "DuplicateAttempts", eventID)
}

func (m *Metrics) putCount(ctx context.Context, name, eventID string) {
	if !m.enabled || m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: []types.Dimension{
					{Name: aws.String("EventId"), Value: aws.String(eventID)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to publish metric",
			zap.Error(err),
			zap.String("metric", name),
			zap.String("eventID", eventID),
		)
	}
}
