package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

func newVehicles(repo *memRepo) (*VehicleService, *fleet.State) {
	state := fleet.NewState(nil, zap.NewNop())
	return NewVehicleService(repo, state, zap.NewNop()), state
}

func TestVehicleService_RegisterAndList(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newVehicles(repo)
	ctx := context.Background()

	for _, id := range []string{"bus-2", "bus-1", "bus-3"} {
		_, err := svc.RegisterVehicle(ctx, RegisterVehicleRequest{VehicleID: id, DriverID: "d-" + id})
		require.NoError(t, err)
	}

	_, err := svc.RegisterVehicle(ctx, RegisterVehicleRequest{VehicleID: "bus-1"})
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)

	page, err := svc.ListVehicles(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "bus-1", page.Items[0].ID)
	assert.Equal(t, "stopped", page.Items[0].Status)
	assert.True(t, page.Items[0].Active)
}

func TestVehicleService_SetStatusPushesToState(t *testing.T) {
	repo := newMemRepo(mustVehicle("bus-1", ""))
	svc, state := newVehicles(repo)
	state.Ingest("bus-1", pos(1, 1, now), vehicle.StatusEnRoute)

	dto, err := svc.SetStatus(context.Background(), "bus-1", "delayed")
	require.NoError(t, err)
	assert.Equal(t, "delayed", dto.Status)
	assert.Equal(t, int64(2), dto.Version)

	snap, _ := state.Get("bus-1")
	assert.Equal(t, vehicle.StatusDelayed, snap.Status)
	assert.Equal(t, vehicle.StatusDelayed, repo.get("bus-1").Status())

	_, err = svc.SetStatus(context.Background(), "bus-1", "parked")
	assert.True(t, domain.IsValidation(err))
}

func TestVehicleService_DeactivateBlocksIngest(t *testing.T) {
	repo := newMemRepo(mustVehicle("bus-1", ""))
	svc, _ := newVehicles(repo)
	ctx := context.Background()

	dto, err := svc.DeactivateVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.False(t, dto.Active)

	ingest, _ := newIngest(t, repo)
	_, err = ingest.Ingest(ctx, "", report("bus-1", 1, 1, now))
	assert.True(t, domain.IsValidation(err))

	_, err = svc.DeactivateVehicle(ctx, "bus-1")
	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)

	dto, err = svc.ActivateVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.True(t, dto.Active)

	res, err := ingest.Ingest(ctx, "", report("bus-1", 1, 1, now))
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestVehicleService_AssignDriver(t *testing.T) {
	repo := newMemRepo(mustVehicle("bus-1", "driver-1"))
	svc, _ := newVehicles(repo)

	dto, err := svc.AssignDriver(context.Background(), "bus-1", "driver-2")
	require.NoError(t, err)
	assert.Equal(t, "driver-2", dto.DriverID)
	assert.Equal(t, "driver-2", repo.get("bus-1").DriverID())

	_, err = svc.GetVehicle(context.Background(), "ghost")
	assert.True(t, domain.IsNotFound(err))
}
