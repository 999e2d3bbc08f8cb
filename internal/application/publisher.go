package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/messages"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
)

// EventPublisher is the outbound side of the event bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// publishEvent wraps data in a CloudEvent keyed by subject and publishes it.
// Failures are logged, never returned: the state change already happened.
func publishEvent(ctx context.Context, pub EventPublisher, logger *zap.Logger, topic, eventType, subject string, data interface{}) {
	if pub == nil {
		return
	}

	cloudEvent, err := kafka.NewCloudEvent(messages.Source, eventType, data)
	if err != nil {
		logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := pub.PublishEvent(ctx, topic, cloudEvent.WithSubject(subject)); err != nil {
		logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
