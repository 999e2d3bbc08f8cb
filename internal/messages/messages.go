// Package messages holds the Kafka topics, CloudEvent types and payloads the
// tracking service produces and consumes.
package messages

import "time"

// Default topic names. Both are overridable through configuration.
const (
	TopicDriverLocations = "driver.locations"
	TopicTrackingEvents  = "tracking.events"
)

// CloudEvent types.
const (
	DriverLocationReported = "tracking.driver.location_reported"
	VehiclePositionUpdated = "tracking.vehicle.position_updated"
	VehicleRouteUpdated    = "tracking.vehicle.route_updated"
)

// Source is the CloudEvent source of everything this service publishes.
const Source = "service-tracking"

// LocationReportedEvent is a driver device's position report.
type LocationReportedEvent struct {
	DriverID  string   `json:"driver_id"`
	VehicleID string   `json:"vehicle_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp"`
	Status    string   `json:"status,omitempty"`
}

// PositionUpdatedEvent is emitted for every change applied to the fleet state.
type PositionUpdatedEvent struct {
	VehicleID  string    `json:"vehicle_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RoutePoint is one point of a route.
type RoutePoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteUpdatedEvent is emitted after an admin saves a route.
type RouteUpdatedEvent struct {
	VehicleID  string       `json:"vehicle_id"`
	Points     []RoutePoint `json:"points"`
	DistanceKm float64      `json:"distance_km"`
	UpdatedBy  string       `json:"updated_by"`
	OccurredAt time.Time    `json:"occurred_at"`
}
