package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

var (
	p1 = vehicle.Coordinate{Latitude: 36.70, Longitude: 5.05}
	p2 = vehicle.Coordinate{Latitude: 36.72, Longitude: 5.08}
)

func readyDraft(t *testing.T) *Draft {
	t.Helper()
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))
	_, err := d.SubmitPoint(p1)
	require.NoError(t, err)
	_, err = d.SubmitPoint(p2)
	require.NoError(t, err)
	require.Equal(t, StateReady, d.State())
	return d
}

func TestDraft_SubmitPointInIdleIsNoOp(t *testing.T) {
	d := NewDraft()

	accepted, err := d.SubmitPoint(p1)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, StateIdle, d.State())
	assert.Empty(t, d.Points())
}

func TestDraft_TwoTapsReachReady(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))
	assert.Equal(t, StateAwaitingStart, d.State())
	assert.Equal(t, "bus-1", d.VehicleID())

	accepted, err := d.SubmitPoint(p1)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, StateAwaitingEnd, d.State())
	assert.Equal(t, []vehicle.Coordinate{p1}, d.Points())

	accepted, err = d.SubmitPoint(p2)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, []vehicle.Coordinate{p1, p2}, d.Points())
}

func TestDraft_CancelDiscards(t *testing.T) {
	tests := []struct {
		name string
		taps int
		from DraftState
	}{
		{"from awaiting start", 0, StateAwaitingStart},
		{"from awaiting end", 1, StateAwaitingEnd},
		{"from ready", 2, StateReady},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDraft()
			require.NoError(t, d.StartSelection("bus-1"))
			for _, p := range []vehicle.Coordinate{p1, p2}[:tc.taps] {
				_, err := d.SubmitPoint(p)
				require.NoError(t, err)
			}
			require.Equal(t, tc.from, d.State())

			require.NoError(t, d.Cancel())
			assert.Equal(t, StateIdle, d.State())
			assert.Empty(t, d.Points())
			assert.Empty(t, d.VehicleID())
		})
	}
}

func TestDraft_StartSelectionRequiresVehicle(t *testing.T) {
	d := NewDraft()

	err := d.StartSelection("  ")
	assert.ErrorIs(t, err, ErrNoVehicleSelected)
	assert.Equal(t, StateIdle, d.State())
}

func TestDraft_StartSelectionTwiceIsInvalid(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))

	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, d.StartSelection("bus-2"), &stateErr)
	assert.Equal(t, "bus-1", d.VehicleID())
}

func TestDraft_TapsIgnoredWhileReadyOrSaving(t *testing.T) {
	d := readyDraft(t)

	accepted, err := d.SubmitPoint(vehicle.Coordinate{Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, []vehicle.Coordinate{p1, p2}, d.Points())

	_, err = d.BeginSave()
	require.NoError(t, err)

	accepted, err = d.SubmitPoint(vehicle.Coordinate{Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, StateSaving, d.State())
}

func TestDraft_InvalidTapRejected(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))

	accepted, err := d.SubmitPoint(vehicle.Coordinate{Latitude: 95, Longitude: 0})
	assert.False(t, accepted)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, StateAwaitingStart, d.State())
}

func TestDraft_SaveLifecycle(t *testing.T) {
	d := readyDraft(t)

	rt, err := d.BeginSave()
	require.NoError(t, err)
	assert.Equal(t, StateSaving, d.State())
	assert.Equal(t, []vehicle.Coordinate{p1, p2}, rt.Points)

	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, d.Cancel(), &stateErr, "saving cannot be cancelled")

	require.NoError(t, d.FailSave())
	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, []vehicle.Coordinate{p1, p2}, d.Points(), "draft retained for retry")

	_, err = d.BeginSave()
	require.NoError(t, err)
	require.NoError(t, d.CompleteSave())
	assert.Equal(t, StateIdle, d.State())
	assert.Empty(t, d.Points())
}

func TestDraft_BeginSaveRequiresReady(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))
	_, err := d.SubmitPoint(p1)
	require.NoError(t, err)

	_, err = d.BeginSave()
	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StateAwaitingEnd, d.State())

	assert.Error(t, d.FailSave())
	assert.Error(t, d.CompleteSave())
}

func TestDraft_DegenerateRouteAccepted(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.StartSelection("bus-1"))
	_, err := d.SubmitPoint(p1)
	require.NoError(t, err)
	_, err = d.SubmitPoint(p1)
	require.NoError(t, err)

	rt, err := d.BeginSave()
	require.NoError(t, err)
	assert.Equal(t, rt.Points[0], rt.Points[1])
}

func TestDraft_CancelIdleIsNoOp(t *testing.T) {
	d := NewDraft()
	assert.NoError(t, d.Cancel())
	assert.Equal(t, StateIdle, d.State())
}

func TestDraftState_Transitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransitionTo(StateAwaitingStart))
	assert.False(t, StateIdle.CanTransitionTo(StateReady))
	assert.False(t, StateAwaitingStart.CanTransitionTo(StateReady))
	assert.True(t, StateSaving.CanTransitionTo(StateReady))
}
