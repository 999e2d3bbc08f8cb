package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// RegisterVehicleRequest is the request DTO for registering a vehicle.
type RegisterVehicleRequest struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
	Label     string `json:"label"`
	DriverID  string `json:"driver_id"`
}

// VehicleDTO is the API response representation of a vehicle.
type VehicleDTO struct {
	ID           string            `json:"id"`
	Label        string            `json:"label,omitempty"`
	DriverID     string            `json:"driver_id,omitempty"`
	Active       bool              `json:"active"`
	Status       string            `json:"status"`
	LastPosition *vehicle.Position `json:"last_position,omitempty"`
	Route        *vehicle.Route    `json:"route,omitempty"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// VehicleService implements fleet registry use cases.
type VehicleService struct {
	repo   vehicle.Repository
	state  *fleet.State
	logger *zap.Logger
}

// NewVehicleService creates a new VehicleService.
func NewVehicleService(repo vehicle.Repository, state *fleet.State, logger *zap.Logger) *VehicleService {
	return &VehicleService{repo: repo, state: state, logger: logger}
}

// RegisterVehicle adds a vehicle to the fleet.
func (s *VehicleService) RegisterVehicle(ctx context.Context, req RegisterVehicleRequest) (*VehicleDTO, error) {
	v, err := vehicle.NewVehicle(req.VehicleID, req.Label, req.DriverID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info("vehicle registered",
		zap.String("vehicle_id", v.ID()),
		zap.String("driver_id", v.DriverID()),
	)
	result := toVehicleDTO(v)
	return &result, nil
}

// GetVehicle retrieves a single vehicle.
func (s *VehicleService) GetVehicle(ctx context.Context, id string) (*VehicleDTO, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := toVehicleDTO(v)
	return &result, nil
}

// ListVehicles returns a page of registered vehicles.
func (s *VehicleService) ListVehicles(ctx context.Context, page, limit int) (*domain.PaginatedResult[VehicleDTO], error) {
	vehicles, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// SetStatus changes a vehicle's informational status and pushes it to viewers.
func (s *VehicleService) SetStatus(ctx context.Context, id, status string) (*VehicleDTO, error) {
	parsed, err := vehicle.ParseStatus(status)
	if err != nil {
		return nil, domain.NewFieldValidationError("status", err.Error())
	}

	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := v.SetStatus(parsed); err != nil {
		return nil, err
	}

	v.IncrementVersion()
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	s.state.SetStatus(v.ID(), parsed)

	result := toVehicleDTO(v)
	return &result, nil
}

// DeactivateVehicle stops a vehicle from accepting location reports.
func (s *VehicleService) DeactivateVehicle(ctx context.Context, id string) (*VehicleDTO, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := v.Deactivate(); err != nil {
		return nil, err
	}

	v.IncrementVersion()
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info("vehicle deactivated", zap.String("vehicle_id", v.ID()))
	result := toVehicleDTO(v)
	return &result, nil
}

// ActivateVehicle re-enables location reports for a vehicle.
func (s *VehicleService) ActivateVehicle(ctx context.Context, id string) (*VehicleDTO, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Activate()

	v.IncrementVersion()
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info("vehicle activated", zap.String("vehicle_id", v.ID()))
	result := toVehicleDTO(v)
	return &result, nil
}

// AssignDriver binds a vehicle to a driver.
func (s *VehicleService) AssignDriver(ctx context.Context, id, driverID string) (*VehicleDTO, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v.AssignDriver(driverID)

	v.IncrementVersion()
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	result := toVehicleDTO(v)
	return &result, nil
}

func toVehicleDTO(v *vehicle.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:           v.ID(),
		Label:        v.Label(),
		DriverID:     v.DriverID(),
		Active:       v.Active(),
		Status:       v.Status().String(),
		LastPosition: v.LastPosition(),
		Route:        v.Route(),
		Version:      v.Version(),
		CreatedAt:    v.CreatedAt(),
		UpdatedAt:    v.UpdatedAt(),
	}
}
