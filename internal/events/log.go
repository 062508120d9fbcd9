package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log instead of a broker. It is used
// when no Kafka brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event UserEvent) error {
	p.logger.InfoContext(ctx, "user event",
		"event_type", event.EventType,
		"event_id", event.EventID,
		"user_id", event.UserID,
		"email", event.Email,
		"message", event.Message,
	)
	return nil
}
