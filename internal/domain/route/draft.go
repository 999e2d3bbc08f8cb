package route

import (
	"strings"
	"time"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// ErrNoVehicleSelected is returned when selection starts without a vehicle.
var ErrNoVehicleSelected = domain.NewFieldValidationError("vehicle_id", "no vehicle selected")

// Draft is one admin's in-progress route. It is never persisted; only the
// route it produces is.
type Draft struct {
	vehicleID string
	points    []vehicle.Coordinate
	state     DraftState
	updatedAt time.Time
}

// NewDraft creates an idle draft.
func NewDraft() *Draft {
	return &Draft{state: StateIdle, updatedAt: time.Now().UTC()}
}

// VehicleID returns the vehicle being edited, or "" when idle.
func (d *Draft) VehicleID() string { return d.vehicleID }

// State returns the current state.
func (d *Draft) State() DraftState { return d.state }

// Points returns a copy of the selected points.
func (d *Draft) Points() []vehicle.Coordinate {
	out := make([]vehicle.Coordinate, len(d.points))
	copy(out, d.points)
	return out
}

// UpdatedAt returns when the draft last changed.
func (d *Draft) UpdatedAt() time.Time { return d.updatedAt }

// StartSelection begins authoring a route for vehicleID.
func (d *Draft) StartSelection(vehicleID string) error {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return ErrNoVehicleSelected
	}
	if err := d.transition(StateAwaitingStart); err != nil {
		return err
	}
	d.vehicleID = vehicleID
	d.points = nil
	return nil
}

// SubmitPoint records a map tap. Taps outside the two selection states are
// ignored and reported as not accepted; they are not errors.
func (d *Draft) SubmitPoint(c vehicle.Coordinate) (bool, error) {
	if !d.state.AcceptsPoints() {
		return false, nil
	}
	if err := c.Validate(); err != nil {
		return false, err
	}

	switch d.state {
	case StateAwaitingStart:
		d.points = []vehicle.Coordinate{c}
		d.state = StateAwaitingEnd
	case StateAwaitingEnd:
		d.points = append(d.points, c)
		d.state = StateReady
	}
	d.updatedAt = time.Now().UTC()
	return true, nil
}

// BeginSave moves a ready draft to saving and returns the route to persist.
func (d *Draft) BeginSave() (vehicle.Route, error) {
	if d.state != StateReady {
		return vehicle.Route{}, domain.NewInvalidStateError(string(d.state), string(StateSaving))
	}
	r, err := vehicle.NewRoute(d.points)
	if err != nil {
		return vehicle.Route{}, err
	}
	d.state = StateSaving
	d.updatedAt = time.Now().UTC()
	return r, nil
}

// CompleteSave discards the draft after the route was persisted.
func (d *Draft) CompleteSave() error {
	if d.state != StateSaving {
		return domain.NewInvalidStateError(string(d.state), string(StateIdle))
	}
	d.reset()
	return nil
}

// FailSave returns the draft to ready so the save can be retried.
func (d *Draft) FailSave() error {
	if d.state != StateSaving {
		return domain.NewInvalidStateError(string(d.state), string(StateReady))
	}
	return d.transition(StateReady)
}

// Cancel discards the draft. Cancelling an idle draft is a no-op; a draft
// that is saving cannot be cancelled.
func (d *Draft) Cancel() error {
	if d.state == StateIdle {
		return nil
	}
	if !d.state.CanBeCancelled() {
		return domain.NewInvalidStateError(string(d.state), string(StateIdle))
	}
	d.reset()
	return nil
}

func (d *Draft) transition(target DraftState) error {
	if !d.state.CanTransitionTo(target) {
		return domain.NewInvalidStateError(string(d.state), string(target))
	}
	d.state = target
	d.updatedAt = time.Now().UTC()
	return nil
}

func (d *Draft) reset() {
	d.vehicleID = ""
	d.points = nil
	d.state = StateIdle
	d.updatedAt = time.Now().UTC()
}
