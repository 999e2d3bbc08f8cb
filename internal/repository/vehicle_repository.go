package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	vehicleDomain "github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// VehicleModel is the GORM model for the vehicles table. Each row is the
// document for one vehicle.
type VehicleModel struct {
	ID             string          `gorm:"primaryKey;size:64"`
	Label          string          `gorm:"size:100"`
	DriverID       string          `gorm:"size:128;index"`
	Active         bool            `gorm:"not null;default:true"`
	Status         string          `gorm:"not null;size:20"`
	Latitude       *float64        `gorm:""`
	Longitude      *float64        `gorm:""`
	PositionAt     *time.Time      `gorm:"index"`
	Route          json.RawMessage `gorm:"type:jsonb"`
	RouteUpdatedAt *time.Time      `gorm:""`
	Version        int64           `gorm:"not null;default:1"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (VehicleModel) TableName() string {
	return "vehicles"
}

// GormVehicleRepository is the GORM-based implementation of vehicle.Repository.
type GormVehicleRepository struct {
	db *gorm.DB
}

// NewGormVehicleRepository creates a new GormVehicleRepository.
func NewGormVehicleRepository(db *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: db}
}

// FindByID retrieves a vehicle by its identifier.
func (r *GormVehicleRepository) FindByID(ctx context.Context, id string) (*vehicleDomain.Vehicle, error) {
	var model VehicleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Vehicle", id)
		}
		return nil, domain.NewPersistenceError("find vehicle", err)
	}
	return toDomainVehicle(&model)
}

// List retrieves registered vehicles with pagination, ordered by id.
func (r *GormVehicleRepository) List(ctx context.Context, page, limit int) ([]*vehicleDomain.Vehicle, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&VehicleModel{}).Count(&total).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("count vehicles", err)
	}

	var models []VehicleModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("list vehicles", err)
	}

	vehicles, err := toDomainVehicles(models)
	if err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// ListWithPositions retrieves every vehicle that has reported a position.
func (r *GormVehicleRepository) ListWithPositions(ctx context.Context) ([]*vehicleDomain.Vehicle, error) {
	var models []VehicleModel
	if err := r.db.WithContext(ctx).
		Where("position_at IS NOT NULL").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, domain.NewPersistenceError("list positions", err)
	}
	return toDomainVehicles(models)
}

// Save persists a newly registered vehicle.
func (r *GormVehicleRepository) Save(ctx context.Context, v *vehicleDomain.Vehicle) error {
	model, err := toVehicleModel(v)
	if err != nil {
		return fmt.Errorf("failed to convert vehicle to model: %w", err)
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if result.Error != nil {
		return domain.NewPersistenceError("save vehicle", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError(fmt.Sprintf("vehicle %s is already registered", v.ID()))
	}
	return nil
}

// Update persists registry changes with optimistic locking.
func (r *GormVehicleRepository) Update(ctx context.Context, v *vehicleDomain.Vehicle) error {
	expectedVersion := v.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&VehicleModel{}).
		Where("id = ? AND version = ?", v.ID(), expectedVersion).
		Updates(map[string]interface{}{
			"label":      v.Label(),
			"driver_id":  v.DriverID(),
			"active":     v.Active(),
			"status":     string(v.Status()),
			"version":    v.Version(),
			"updated_at": v.UpdatedAt(),
		})

	if result.Error != nil {
		return domain.NewPersistenceError("update vehicle", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("vehicle was modified by another transaction")
	}
	return nil
}

// UpdatePosition writes pos only when the stored position is older, so the
// store enforces the same ordering as the in-memory fleet state. A status that
// differs from the stored one bumps the version, so an admin Update based on an
// older read fails with a conflict instead of overwriting it.
func (r *GormVehicleRepository) UpdatePosition(ctx context.Context, id string, pos vehicleDomain.Position, status *vehicleDomain.Status) (bool, error) {
	updates := map[string]interface{}{
		"latitude":    pos.Latitude,
		"longitude":   pos.Longitude,
		"position_at": pos.Timestamp.UTC(),
		"updated_at":  time.Now().UTC(),
	}
	if status != nil {
		updates["status"] = string(*status)
		updates["version"] = gorm.Expr("CASE WHEN status <> ? THEN version + 1 ELSE version END", string(*status))
	}

	result := r.db.WithContext(ctx).
		Model(&VehicleModel{}).
		Where("id = ? AND (position_at IS NULL OR position_at < ?)", id, pos.Timestamp.UTC()).
		Updates(updates)
	if result.Error != nil {
		return false, domain.NewPersistenceError("update position", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateRoute overwrites the vehicle's route. Last writer wins.
func (r *GormVehicleRepository) UpdateRoute(ctx context.Context, id string, route vehicleDomain.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}

	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&VehicleModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"route":            data,
			"route_updated_at": now,
			"updated_at":       now,
		})
	if result.Error != nil {
		return domain.NewPersistenceError("update route", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Vehicle", id)
	}
	return nil
}

// --- Conversion Helpers ---

func toVehicleModel(v *vehicleDomain.Vehicle) (*VehicleModel, error) {
	model := &VehicleModel{
		ID:        v.ID(),
		Label:     v.Label(),
		DriverID:  v.DriverID(),
		Active:    v.Active(),
		Status:    string(v.Status()),
		Version:   v.Version(),
		CreatedAt: v.CreatedAt(),
		UpdatedAt: v.UpdatedAt(),
	}

	if pos := v.LastPosition(); pos != nil {
		lat, lng, at := pos.Latitude, pos.Longitude, pos.Timestamp.UTC()
		model.Latitude = &lat
		model.Longitude = &lng
		model.PositionAt = &at
	}

	if rt := v.Route(); rt != nil {
		data, err := json.Marshal(rt)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal route: %w", err)
		}
		model.Route = data
	}
	return model, nil
}

func toDomainVehicle(m *VehicleModel) (*vehicleDomain.Vehicle, error) {
	status, err := vehicleDomain.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var pos *vehicleDomain.Position
	if m.PositionAt != nil && m.Latitude != nil && m.Longitude != nil {
		pos = &vehicleDomain.Position{
			Coordinate: vehicleDomain.Coordinate{Latitude: *m.Latitude, Longitude: *m.Longitude},
			Timestamp:  m.PositionAt.UTC(),
		}
	}

	var rt *vehicleDomain.Route
	if len(m.Route) > 0 && string(m.Route) != "null" {
		var decoded vehicleDomain.Route
		if err := json.Unmarshal(m.Route, &decoded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal route: %w", err)
		}
		rt = &decoded
	}

	return vehicleDomain.ReconstructVehicle(
		m.ID,
		m.Label,
		m.DriverID,
		m.Active,
		status,
		pos,
		rt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainVehicles(models []VehicleModel) ([]*vehicleDomain.Vehicle, error) {
	vehicles := make([]*vehicleDomain.Vehicle, len(models))
	for i := range models {
		v, err := toDomainVehicle(&models[i])
		if err != nil {
			return nil, err
		}
		vehicles[i] = v
	}
	return vehicles, nil
}
