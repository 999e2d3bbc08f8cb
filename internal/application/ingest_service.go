package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// LocationReport is an untrusted position report from a driver device.
type LocationReport struct {
	VehicleID string   `json:"vehicle_id" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Timestamp string   `json:"timestamp" validate:"required"`
	Status    string   `json:"status" validate:"omitempty,oneof=en-route stopped delayed"`
}

// IngestResult tells the driver whether the report changed anything. A stale
// report is not an error; it is acknowledged with Applied=false.
type IngestResult struct {
	VehicleID string          `json:"vehicle_id"`
	Applied   bool            `json:"applied"`
	Current   *fleet.Snapshot `json:"current,omitempty"`
}

// IngestService is the only way position reports enter the fleet state.
type IngestService struct {
	repo      vehicle.Repository
	state     *fleet.State
	validate  *validator.Validate
	clockSkew time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewIngestService creates a new IngestService. Reports timestamped more than
// clockSkew in the future are rejected.
func NewIngestService(repo vehicle.Repository, state *fleet.State, clockSkew time.Duration, logger *zap.Logger) *IngestService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &IngestService{
		repo:      repo,
		state:     state,
		validate:  v,
		clockSkew: clockSkew,
		now:       time.Now,
		logger:    logger,
	}
}

// Ingest validates report and applies it. driverID is the caller identity
// asserted by the auth layer; when the vehicle is bound to a driver, only
// that driver may report for it.
func (s *IngestService) Ingest(ctx context.Context, driverID string, report LocationReport) (*IngestResult, error) {
	pos, status, err := s.parse(report)
	if err != nil {
		s.logger.Info("location report rejected",
			zap.String("vehicle_id", report.VehicleID),
			zap.String("driver_id", driverID),
			zap.Error(err),
		)
		return nil, err
	}

	v, err := s.repo.FindByID(ctx, report.VehicleID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewFieldValidationError("vehicle_id", "unknown vehicle")
		}
		return nil, err
	}
	if !v.Active() {
		return nil, domain.NewFieldValidationError("vehicle_id", "vehicle is not active")
	}
	if driverID != "" && v.DriverID() != "" && v.DriverID() != driverID {
		return nil, domain.NewForbiddenError("driver is not assigned to this vehicle")
	}

	current, known := s.state.Get(v.ID())
	if known && !pos.NewerThan(current.Position()) {
		return s.stale(v.ID(), pos, current), nil
	}
	// Fleet state may not hold the vehicle yet; the stored document still orders.
	if !v.RecordPosition(pos) {
		return s.stale(v.ID(), pos, current), nil
	}

	var statusPtr *vehicle.Status
	if status != "" {
		statusPtr = &status
	}
	written, err := s.repo.UpdatePosition(ctx, v.ID(), pos, statusPtr)
	if err != nil {
		s.logger.Error("failed to persist position",
			zap.String("vehicle_id", v.ID()),
			zap.Error(err),
		)
		return nil, err
	}
	if !written {
		current, _ = s.state.Get(v.ID())
		return s.stale(v.ID(), pos, current), nil
	}

	if status == "" {
		status = v.Status()
	}
	applied := s.state.Ingest(v.ID(), pos, status)
	current, _ = s.state.Get(v.ID())
	return &IngestResult{VehicleID: v.ID(), Applied: applied, Current: &current}, nil
}

func (s *IngestService) stale(vehicleID string, pos vehicle.Position, current fleet.Snapshot) *IngestResult {
	s.logger.Debug("stale location report ignored",
		zap.String("vehicle_id", vehicleID),
		zap.Time("reported_at", pos.Timestamp),
	)
	result := &IngestResult{VehicleID: vehicleID, Applied: false}
	if current.VehicleID != "" {
		result.Current = &current
	}
	return result
}

func (s *IngestService) parse(report LocationReport) (vehicle.Position, vehicle.Status, error) {
	if err := s.validate.Struct(report); err != nil {
		return vehicle.Position{}, "", toValidationError(err)
	}

	coord := vehicle.Coordinate{Latitude: *report.Latitude, Longitude: *report.Longitude}
	if err := coord.Validate(); err != nil {
		return vehicle.Position{}, "", err
	}

	ts, err := parseTimestamp(report.Timestamp)
	if err != nil {
		return vehicle.Position{}, "", domain.NewFieldValidationError("timestamp", err.Error())
	}
	if ts.After(s.now().Add(s.clockSkew)) {
		return vehicle.Position{}, "", domain.NewFieldValidationError("timestamp", "is in the future")
	}

	return vehicle.Position{Coordinate: coord, Timestamp: ts}, vehicle.Status(report.Status), nil
}

// parseTimestamp accepts RFC 3339 or integer Unix milliseconds. Times are
// truncated to the microsecond precision the store keeps.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC().Truncate(time.Microsecond), nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC 3339 or Unix milliseconds")
	}
	return time.UnixMilli(ms).UTC(), nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError(err.Error())
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "gte", "lte":
		msg = fmt.Sprintf("is out of range (%s %s)", fe.Tag(), fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		msg = fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return domain.NewFieldValidationError(fe.Field(), msg)
}
