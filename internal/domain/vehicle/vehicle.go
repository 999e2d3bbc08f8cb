package vehicle

import (
	"strings"
	"time"

	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// Vehicle is the aggregate root for one bus and its driver.
type Vehicle struct {
	id           string
	label        string
	driverID     string
	active       bool
	status       Status
	lastPosition *Position
	route        *Route

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewVehicle registers a new active vehicle with status=stopped.
func NewVehicle(id, label, driverID string) (*Vehicle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.NewFieldValidationError("vehicle_id", "vehicle ID is required")
	}
	if len(id) > 64 {
		return nil, domain.NewFieldValidationError("vehicle_id", "vehicle ID must be at most 64 characters")
	}

	now := time.Now().UTC()
	return &Vehicle{
		id:        id,
		label:     strings.TrimSpace(label),
		driverID:  strings.TrimSpace(driverID),
		active:    true,
		status:    StatusStopped,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructVehicle rebuilds a Vehicle from persistence data (no validation).
func ReconstructVehicle(
	id, label, driverID string,
	active bool,
	status Status,
	lastPosition *Position,
	route *Route,
	version int64,
	createdAt, updatedAt time.Time,
) *Vehicle {
	return &Vehicle{
		id:           id,
		label:        label,
		driverID:     driverID,
		active:       active,
		status:       status,
		lastPosition: lastPosition,
		route:        route,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// --- Getters ---

// ID returns the stable vehicle identifier.
func (v *Vehicle) ID() string { return v.id }

// Label returns the display label, e.g. the bus number.
func (v *Vehicle) Label() string { return v.label }

// DriverID returns the bound driver's opaque id, or "" when unbound.
func (v *Vehicle) DriverID() string { return v.driverID }

// Active reports whether the vehicle accepts location reports.
func (v *Vehicle) Active() bool { return v.active }

// Status returns the informational status.
func (v *Vehicle) Status() Status { return v.status }

// LastPosition returns the last stored position, or nil if never reported.
func (v *Vehicle) LastPosition() *Position { return v.lastPosition }

// Route returns the authored route, or nil if none.
func (v *Vehicle) Route() *Route { return v.route }

// Version returns the entity version for optimistic locking.
func (v *Vehicle) Version() int64 { return v.version }

// CreatedAt returns the creation timestamp.
func (v *Vehicle) CreatedAt() time.Time { return v.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (v *Vehicle) UpdatedAt() time.Time { return v.updatedAt }

// --- Behavior ---

// RecordPosition stores pos if it is strictly newer than the stored one and
// reports whether it did.
func (v *Vehicle) RecordPosition(pos Position) bool {
	if v.lastPosition != nil && !pos.NewerThan(*v.lastPosition) {
		return false
	}
	p := pos
	v.lastPosition = &p
	v.updatedAt = time.Now().UTC()
	return true
}

// SetRoute replaces the route. Last writer wins.
func (v *Vehicle) SetRoute(route Route) {
	v.route = &route
	v.updatedAt = time.Now().UTC()
}

// SetStatus changes the informational status.
func (v *Vehicle) SetStatus(status Status) error {
	if !status.IsValid() {
		return domain.NewFieldValidationError("status", "invalid vehicle status: "+string(status))
	}
	v.status = status
	v.updatedAt = time.Now().UTC()
	return nil
}

// AssignDriver binds the vehicle to a driver.
func (v *Vehicle) AssignDriver(driverID string) {
	v.driverID = strings.TrimSpace(driverID)
	v.updatedAt = time.Now().UTC()
}

// Deactivate stops the vehicle from accepting location reports.
func (v *Vehicle) Deactivate() error {
	if !v.active {
		return domain.NewInvalidStateError("inactive", "inactive")
	}
	v.active = false
	v.updatedAt = time.Now().UTC()
	return nil
}

// Activate re-enables location reports.
func (v *Vehicle) Activate() {
	v.active = true
	v.updatedAt = time.Now().UTC()
}

// IncrementVersion bumps the version for optimistic locking.
func (v *Vehicle) IncrementVersion() {
	v.version++
	v.updatedAt = time.Now().UTC()
}
