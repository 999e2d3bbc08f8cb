package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// TrackingOptions selects the delivery mode for viewer streams.
type TrackingOptions struct {
	// PollOnly serves every stream from the polling fallback instead of the hub.
	PollOnly     bool
	PollInterval time.Duration
}

// RouteDTO is the response representation of a vehicle's route.
type RouteDTO struct {
	VehicleID  string               `json:"vehicle_id"`
	Points     []vehicle.Coordinate `json:"points"`
	DistanceKm float64              `json:"distance_km"`
}

// TrackingService serves the read side: snapshots, single lookups and streams.
type TrackingService struct {
	repo   vehicle.Repository
	state  *fleet.State
	hub    *fleet.Hub
	opts   TrackingOptions
	logger *zap.Logger
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(repo vehicle.Repository, state *fleet.State, hub *fleet.Hub, opts TrackingOptions, logger *zap.Logger) *TrackingService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &TrackingService{
		repo:   repo,
		state:  state,
		hub:    hub,
		opts:   opts,
		logger: logger,
	}
}

// Warm seeds the fleet state with the last positions held by the store.
func (s *TrackingService) Warm(ctx context.Context) (int, error) {
	vehicles, err := s.repo.ListWithPositions(ctx)
	if err != nil {
		return 0, err
	}
	for _, v := range vehicles {
		pos := v.LastPosition()
		s.state.Seed(fleet.Snapshot{
			VehicleID: v.ID(),
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Timestamp: pos.Timestamp,
			Status:    v.Status(),
		})
	}
	s.logger.Info("fleet state warmed", zap.Int("vehicles", len(vehicles)))
	return len(vehicles), nil
}

// List returns the current snapshot of vehicles matching filter.
func (s *TrackingService) List(filter fleet.Filter) []fleet.Snapshot {
	out := make([]fleet.Snapshot, 0)
	for snap := range s.state.List() {
		if filter.Matches(snap.VehicleID) {
			out = append(out, snap)
		}
	}
	return out
}

// Get returns one vehicle's last known position.
func (s *TrackingService) Get(vehicleID string) (*fleet.Snapshot, error) {
	snap, ok := s.state.Get(vehicleID)
	if !ok {
		return nil, domain.NewNotFoundError("Position", vehicleID)
	}
	return &snap, nil
}

// Subscribe opens a stream for filter and returns it along with the initial
// snapshot. The stream is opened before the snapshot is taken so no change
// falls between the two; a viewer may see a vehicle in both and should keep
// the newer timestamp.
func (s *TrackingService) Subscribe(ctx context.Context, filter fleet.Filter) (fleet.Stream, []fleet.Snapshot) {
	if s.opts.PollOnly {
		initial := s.List(filter)
		return fleet.NewPollStream(ctx, s.state, filter, s.opts.PollInterval, initial, s.logger), initial
	}

	sub := s.hub.Subscribe(filter)
	return sub, s.List(filter)
}

// Route returns the persisted route for vehicleID.
func (s *TrackingService) Route(ctx context.Context, vehicleID string) (*RouteDTO, error) {
	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	rt := v.Route()
	if rt == nil {
		return nil, domain.NewNotFoundError("Route", vehicleID)
	}
	return toRouteDTO(vehicleID, *rt), nil
}

func toRouteDTO(vehicleID string, rt vehicle.Route) *RouteDTO {
	return &RouteDTO{
		VehicleID:  vehicleID,
		Points:     rt.Points,
		DistanceKm: rt.DistanceKm(),
	}
}
