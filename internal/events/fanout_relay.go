package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/messages"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
)

// FanoutRelay is a hub subscriber that republishes every fleet change to
// Kafka for downstream consumers such as notification senders. Events are
// keyed by vehicle so per-vehicle order survives the hop.
type FanoutRelay struct {
	hub       *fleet.Hub
	publisher application.EventPublisher
	topic     string
	logger    *zap.Logger

	resubscribeDelay time.Duration
}

const defaultResubscribeDelay = time.Second

// NewFanoutRelay creates a new FanoutRelay.
func NewFanoutRelay(hub *fleet.Hub, publisher application.EventPublisher, topic string, logger *zap.Logger) *FanoutRelay {
	return &FanoutRelay{
		hub:              hub,
		publisher:        publisher,
		topic:            topic,
		logger:           logger,
		resubscribeDelay: defaultResubscribeDelay,
	}
}

// Run relays until ctx is cancelled or the hub closes. When the hub drops the
// relay for falling behind, the changes it missed are lost and Run subscribes
// again after a short delay.
func (r *FanoutRelay) Run(ctx context.Context) error {
	for {
		err := r.drain(ctx)
		if !errors.Is(err, fleet.ErrSlowSubscriber) {
			return err
		}

		r.logger.Warn("fan-out relay fell behind, resubscribing",
			zap.Duration("delay", r.resubscribeDelay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.resubscribeDelay):
		}
	}
}

// drain relays one subscription until it ends.
func (r *FanoutRelay) drain(ctx context.Context) error {
	sub := r.hub.Subscribe(fleet.All)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return nil
			}
			r.relay(ctx, snap)
		}
	}
}

func (r *FanoutRelay) relay(ctx context.Context, snap fleet.Snapshot) {
	evt := messages.PositionUpdatedEvent{
		VehicleID:  snap.VehicleID,
		Latitude:   snap.Latitude,
		Longitude:  snap.Longitude,
		Timestamp:  snap.Timestamp,
		Status:     snap.Status.String(),
		OccurredAt: time.Now().UTC(),
	}

	ce, err := kafka.NewCloudEvent(messages.Source, messages.VehiclePositionUpdated, evt)
	if err != nil {
		r.logger.Error("failed to create cloud event", zap.Error(err))
		return
	}
	if err := r.publisher.PublishEvent(ctx, r.topic, ce.WithSubject(snap.VehicleID)); err != nil {
		r.logger.Error("failed to relay position update",
			zap.String("vehicle_id", snap.VehicleID),
			zap.Error(err),
		)
	}
}
