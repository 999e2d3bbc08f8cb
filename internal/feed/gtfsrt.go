// Package feed renders the fleet as a GTFS-realtime VehiclePositions feed.
package feed

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
)

// ContentType is the media type served for an encoded feed.
const ContentType = "application/x-protobuf"

const gtfsRealtimeVersion = "2.0"

// BuildVehiclePositions converts snapshots into a full-dataset feed message
// stamped with now.
func BuildVehiclePositions(snaps []fleet.Snapshot, now time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(unixSeconds(now)),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(snaps)),
	}
	for _, snap := range snaps {
		msg.Entity = append(msg.Entity, vehicleEntity(snap))
	}
	return msg
}

// Encode builds and marshals the feed.
func Encode(snaps []fleet.Snapshot, now time.Time) ([]byte, error) {
	b, err := proto.Marshal(BuildVehiclePositions(snaps, now))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gtfs-rt feed: %w", err)
	}
	return b, nil
}

func vehicleEntity(snap fleet.Snapshot) *gtfs.FeedEntity {
	vp := &gtfs.VehiclePosition{
		Vehicle: &gtfs.VehicleDescriptor{
			Id: proto.String(snap.VehicleID),
		},
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(snap.Latitude)),
			Longitude: proto.Float32(float32(snap.Longitude)),
		},
		Timestamp:     proto.Uint64(unixSeconds(snap.Timestamp)),
		CurrentStatus: stopStatus(snap.Status).Enum(),
	}
	if snap.Status == vehicle.StatusDelayed {
		vp.CongestionLevel = gtfs.VehiclePosition_CONGESTION.Enum()
	}
	return &gtfs.FeedEntity{
		Id:      proto.String(snap.VehicleID),
		Vehicle: vp,
	}
}

func stopStatus(s vehicle.Status) gtfs.VehiclePosition_VehicleStopStatus {
	if s == vehicle.StatusStopped {
		return gtfs.VehiclePosition_STOPPED_AT
	}
	return gtfs.VehiclePosition_IN_TRANSIT_TO
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
