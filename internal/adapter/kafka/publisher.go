package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// DecisionPublisher produces validation decisions to a Kafka topic.
// Writes are asynchronous; delivery outcomes are logged and counted.
type DecisionPublisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDecisionPublisher creates a producer for the decisions topic.
func NewDecisionPublisher(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *DecisionPublisher {
	p := &DecisionPublisher{metrics: metrics, logger: logger}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// Publish enqueues one decision. Only serialization failures are returned;
// broker errors surface through the completion callback.
func (p *DecisionPublisher) Publish(ctx context.Context, event domain.DecisionEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		p.metrics.DecisionsPublished.WithLabelValues("error").Inc()
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *DecisionPublisher) completed(messages []kafkago.Message, err error) {
	if err != nil {
		p.metrics.DecisionsPublished.WithLabelValues("error").Add(float64(len(messages)))
		p.logger.Warn("decision delivery failed", "messages", len(messages), "error", err)
		return
	}
	p.metrics.DecisionsPublished.WithLabelValues("success").Add(float64(len(messages)))
}

// Close flushes pending messages.
func (p *DecisionPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage keys a decision by its ID so retries land on the same
// partition.
func serializeToMessage(event domain.DecisionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize decision event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "decision_type", Value: []byte(event.Type)},
			{Key: "status", Value: []byte(event.Status)},
			{Key: "decided_at", Value: []byte(event.DecidedAt.Format(time.RFC3339))},
		},
	}, nil
}
