package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/route"
	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/messages"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// DraftDTO is the response representation of an admin's route draft.
type DraftDTO struct {
	AdminID   string               `json:"admin_id"`
	VehicleID string               `json:"vehicle_id,omitempty"`
	State     string               `json:"state"`
	Points    []vehicle.Coordinate `json:"points"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SubmitPointResult reports whether a map tap was used.
type SubmitPointResult struct {
	Accepted bool     `json:"accepted"`
	Draft    DraftDTO `json:"draft"`
}

type authoringSession struct {
	mu    sync.Mutex
	draft *route.Draft
}

// AuthoringService runs one route-authoring session per admin.
type AuthoringService struct {
	repo      vehicle.Repository
	publisher EventPublisher
	topic     string
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*authoringSession
}

// NewAuthoringService creates a new AuthoringService. Saved routes are
// announced on topic.
func NewAuthoringService(repo vehicle.Repository, publisher EventPublisher, topic string, logger *zap.Logger) *AuthoringService {
	return &AuthoringService{
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		sessions:  make(map[string]*authoringSession),
	}
}

// StartPathSelection begins authoring a route for vehicleID.
func (s *AuthoringService) StartPathSelection(ctx context.Context, adminID, vehicleID string) (*DraftDTO, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, route.ErrNoVehicleSelected
	}

	if other := s.otherEditor(adminID, vehicleID); other != "" {
		s.logger.Warn("vehicle route is already being edited; last save wins",
			zap.String("vehicle_id", vehicleID),
			zap.String("admin_id", adminID),
			zap.String("other_admin_id", other),
		)
	}

	sess := s.session(adminID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if state := sess.draft.State(); state != route.StateIdle {
		return nil, domain.NewInvalidStateError(state.String(), route.StateAwaitingStart.String())
	}

	if _, err := s.repo.FindByID(ctx, vehicleID); err != nil {
		return nil, err
	}

	if err := sess.draft.StartSelection(vehicleID); err != nil {
		return nil, err
	}

	s.logger.Info("route selection started",
		zap.String("admin_id", adminID),
		zap.String("vehicle_id", vehicleID),
	)
	dto := toDraftDTO(adminID, sess.draft)
	return &dto, nil
}

// SubmitPoint feeds a map tap to the admin's draft. Taps that mean nothing in
// the current state are ignored.
func (s *AuthoringService) SubmitPoint(ctx context.Context, adminID string, c vehicle.Coordinate) (*SubmitPointResult, error) {
	sess := s.session(adminID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	accepted, err := sess.draft.SubmitPoint(c)
	if err != nil {
		return nil, err
	}
	if !accepted {
		s.logger.Debug("map tap ignored",
			zap.String("admin_id", adminID),
			zap.String("state", sess.draft.State().String()),
		)
	}
	return &SubmitPointResult{Accepted: accepted, Draft: toDraftDTO(adminID, sess.draft)}, nil
}

// SaveRoute persists a ready draft. On failure the draft stays ready so the
// admin can retry.
func (s *AuthoringService) SaveRoute(ctx context.Context, adminID string) (*RouteDTO, error) {
	sess := s.session(adminID)

	sess.mu.Lock()
	rt, err := sess.draft.BeginSave()
	vehicleID := sess.draft.VehicleID()
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}

	saveErr := s.persistRoute(ctx, vehicleID, rt)

	sess.mu.Lock()
	if saveErr != nil {
		_ = sess.draft.FailSave()
	} else {
		_ = sess.draft.CompleteSave()
	}
	sess.mu.Unlock()

	if saveErr != nil {
		s.logger.Error("failed to save route",
			zap.String("admin_id", adminID),
			zap.String("vehicle_id", vehicleID),
			zap.Error(saveErr),
		)
		return nil, saveErr
	}

	s.logger.Info("route saved",
		zap.String("admin_id", adminID),
		zap.String("vehicle_id", vehicleID),
		zap.Float64("distance_km", rt.DistanceKm()),
	)
	s.publishRouteUpdated(ctx, adminID, vehicleID, rt)
	return toRouteDTO(vehicleID, rt), nil
}

// persistRoute applies rt to the vehicle aggregate and writes only the route,
// so a concurrent position or status write is not clobbered.
func (s *AuthoringService) persistRoute(ctx context.Context, vehicleID string, rt vehicle.Route) error {
	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	v.SetRoute(rt)
	return s.repo.UpdateRoute(ctx, v.ID(), *v.Route())
}

// CancelRoute discards the admin's draft.
func (s *AuthoringService) CancelRoute(ctx context.Context, adminID string) (*DraftDTO, error) {
	sess := s.session(adminID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.draft.Cancel(); err != nil {
		return nil, err
	}
	dto := toDraftDTO(adminID, sess.draft)
	return &dto, nil
}

// CurrentDraft returns the admin's draft.
func (s *AuthoringService) CurrentDraft(adminID string) DraftDTO {
	sess := s.session(adminID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return toDraftDTO(adminID, sess.draft)
}

func (s *AuthoringService) session(adminID string) *authoringSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[adminID]
	if !ok {
		sess = &authoringSession{draft: route.NewDraft()}
		s.sessions[adminID] = sess
	}
	return sess
}

// otherEditor returns another admin with an open draft for vehicleID, if any.
// It must be called without holding any session lock.
func (s *AuthoringService) otherEditor(adminID, vehicleID string) string {
	s.mu.Lock()
	others := make(map[string]*authoringSession, len(s.sessions))
	for id, sess := range s.sessions {
		if id != adminID {
			others[id] = sess
		}
	}
	s.mu.Unlock()

	for id, sess := range others {
		sess.mu.Lock()
		editing := sess.draft.VehicleID() == vehicleID && sess.draft.State() != route.StateIdle
		sess.mu.Unlock()
		if editing {
			return id
		}
	}
	return ""
}

func (s *AuthoringService) publishRouteUpdated(ctx context.Context, adminID, vehicleID string, rt vehicle.Route) {
	points := make([]messages.RoutePoint, len(rt.Points))
	for i, p := range rt.Points {
		points[i] = messages.RoutePoint{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	evt := messages.RouteUpdatedEvent{
		VehicleID:  vehicleID,
		Points:     points,
		DistanceKm: rt.DistanceKm(),
		UpdatedBy:  adminID,
		OccurredAt: time.Now().UTC(),
	}
	publishEvent(ctx, s.publisher, s.logger, s.topic, messages.VehicleRouteUpdated, vehicleID, evt)
}

func toDraftDTO(adminID string, d *route.Draft) DraftDTO {
	return DraftDTO{
		AdminID:   adminID,
		VehicleID: d.VehicleID(),
		State:     d.State().String(),
		Points:    d.Points(),
		UpdatedAt: d.UpdatedAt(),
	}
}
