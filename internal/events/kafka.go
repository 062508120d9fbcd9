package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the topic the notification service consumes.
const DefaultTopic = "user-events"

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaPublisher produces JSON user events keyed by user id, so events for
// one user stay ordered on a single partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *Metrics
}

type KafkaOption func(*KafkaPublisher)

func WithTopic(topic string) KafkaOption {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) KafkaOption {
	return func(p *KafkaPublisher) {
		p.metrics = m
	}
}

func NewKafkaPublisher(producer Producer, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    DefaultTopic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues the event and returns without waiting for the broker.
// The produce context is detached from ctx so a finished request does not
// abort delivery.
func (p *KafkaPublisher) Publish(ctx context.Context, event UserEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.metrics.incFailed(event.EventType)
		return err
	}

	p.logger.InfoContext(ctx, "sending user event",
		"event_type", event.EventType,
		"user_id", event.UserID,
		"email", event.Email,
	)

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	produceCtx := context.WithoutCancel(ctx)
	p.producer.Produce(produceCtx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.metrics.incFailed(event.EventType)
			p.logger.ErrorContext(produceCtx, "failed to send user event",
				"event_type", event.EventType,
				"event_id", event.EventID,
				"user_id", event.UserID,
				"error", err,
			)
			return
		}
		p.metrics.incPublished(event.EventType)
		p.logger.DebugContext(produceCtx, "user event sent",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"partition", r.Partition,
			"offset", r.Offset,
		)
	})
	return nil
}
