package fleet

import (
	"time"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
)

// Snapshot is the last known state of one vehicle. It is also the payload of
// every change event delivered to subscribers.
type Snapshot struct {
	VehicleID string         `json:"vehicle_id"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Timestamp time.Time      `json:"timestamp"`
	Status    vehicle.Status `json:"status"`
}

// Position returns the snapshot's position.
func (s Snapshot) Position() vehicle.Position {
	return vehicle.Position{
		Coordinate: vehicle.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude},
		Timestamp:  s.Timestamp,
	}
}

// Filter selects vehicles. An empty filter matches every vehicle.
type Filter struct {
	VehicleIDs []string `json:"vehicle_ids,omitempty"`
}

// All is the filter used by admin viewers.
var All = Filter{}

// ForVehicles builds a filter for the given ids.
func ForVehicles(ids ...string) Filter {
	return Filter{VehicleIDs: ids}
}

// Matches reports whether vehicleID passes the filter.
func (f Filter) Matches(vehicleID string) bool {
	if len(f.VehicleIDs) == 0 {
		return true
	}
	for _, id := range f.VehicleIDs {
		if id == vehicleID {
			return true
		}
	}
	return false
}
