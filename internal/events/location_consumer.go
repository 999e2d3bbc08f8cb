package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/messages"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
)

// Ingester is the part of the ingest gateway the consumer needs.
type Ingester interface {
	Ingest(ctx context.Context, driverID string, report application.LocationReport) (*application.IngestResult, error)
}

// LocationEventConsumer feeds driver location reports published on Kafka
// through the same gateway as the HTTP endpoint.
type LocationEventConsumer struct {
	consumer *kafka.Consumer
	ingester Ingester
	logger   *zap.Logger
}

// NewLocationEventConsumer creates a new LocationEventConsumer.
func NewLocationEventConsumer(
	brokers []string,
	groupID string,
	topic string,
	ingester Ingester,
	logger *zap.Logger,
) *LocationEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, topic, logger)
	return &LocationEventConsumer{
		consumer: consumer,
		ingester: ingester,
		logger:   logger,
	}
}

// Start begins consuming location reports. This blocks until the context is cancelled.
func (c *LocationEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *LocationEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *LocationEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from location topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case messages.DriverLocationReported:
		return c.handleLocationReported(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled location event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *LocationEventConsumer) handleLocationReported(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt messages.LocationReportedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse LocationReportedEvent data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	result, err := c.ingester.Ingest(ctx, evt.DriverID, application.LocationReport{
		VehicleID: evt.VehicleID,
		Latitude:  evt.Latitude,
		Longitude: evt.Longitude,
		Timestamp: evt.Timestamp,
		Status:    evt.Status,
	})
	if err != nil {
		// Store failures are logged at error level by the consumer loop. The
		// offset is committed either way and the report is not retried.
		if domain.IsPersistence(err) {
			return err
		}
		c.logger.Info("location report dropped",
			zap.String("vehicle_id", evt.VehicleID),
			zap.Error(err),
		)
		return nil
	}

	c.logger.Debug("location report processed",
		zap.String("vehicle_id", result.VehicleID),
		zap.Bool("applied", result.Applied),
	)
	return nil
}
