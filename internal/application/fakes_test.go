package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
)

var errStoreDown = errors.New("store unavailable")

// memRepo is an in-memory vehicle.Repository.
type memRepo struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle.Vehicle

	failPositions  bool
	failRoutes     int
	positionWrites int
}

func newMemRepo(vehicles ...*vehicle.Vehicle) *memRepo {
	r := &memRepo{vehicles: make(map[string]*vehicle.Vehicle)}
	for _, v := range vehicles {
		r.vehicles[v.ID()] = v
	}
	return r
}

func (r *memRepo) FindByID(_ context.Context, id string) (*vehicle.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, domain.NewNotFoundError("Vehicle", id)
	}
	return clone(v), nil
}

func (r *memRepo) List(_ context.Context, page, limit int) ([]*vehicle.Vehicle, int64, error) {
	all := r.sorted()
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r *memRepo) ListWithPositions(_ context.Context) ([]*vehicle.Vehicle, error) {
	var out []*vehicle.Vehicle
	for _, v := range r.sorted() {
		if v.LastPosition() != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, v *vehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[v.ID()]; ok {
		return domain.NewConflictError("vehicle " + v.ID() + " is already registered")
	}
	r.vehicles[v.ID()] = clone(v)
	return nil
}

func (r *memRepo) Update(_ context.Context, v *vehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.vehicles[v.ID()]
	if !ok || stored.Version() != v.Version()-1 {
		return domain.NewConflictError("vehicle was modified by another transaction")
	}
	r.vehicles[v.ID()] = vehicle.ReconstructVehicle(
		v.ID(), v.Label(), v.DriverID(), v.Active(), v.Status(),
		stored.LastPosition(), stored.Route(), v.Version(), v.CreatedAt(), v.UpdatedAt(),
	)
	return nil
}

func (r *memRepo) UpdatePosition(_ context.Context, id string, pos vehicle.Position, status *vehicle.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionWrites++
	if r.failPositions {
		return false, domain.NewPersistenceError("update position", errStoreDown)
	}
	v, ok := r.vehicles[id]
	if !ok {
		return false, nil
	}
	if !v.RecordPosition(pos) {
		return false, nil
	}
	if status != nil && *status != v.Status() {
		_ = v.SetStatus(*status)
		v.IncrementVersion()
	}
	return true, nil
}

func (r *memRepo) UpdateRoute(_ context.Context, id string, rt vehicle.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRoutes > 0 {
		r.failRoutes--
		return domain.NewPersistenceError("update route", errStoreDown)
	}
	v, ok := r.vehicles[id]
	if !ok {
		return domain.NewNotFoundError("Vehicle", id)
	}
	v.SetRoute(rt)
	return nil
}

func (r *memRepo) get(id string) *vehicle.Vehicle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vehicles[id]
}

func (r *memRepo) sorted() []*vehicle.Vehicle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*vehicle.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func clone(v *vehicle.Vehicle) *vehicle.Vehicle {
	return vehicle.ReconstructVehicle(
		v.ID(), v.Label(), v.DriverID(), v.Active(), v.Status(),
		v.LastPosition(), v.Route(), v.Version(), v.CreatedAt(), v.UpdatedAt(),
	)
}

type recordedEvent struct {
	topic string
	event kafka.CloudEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, recordedEvent{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) published() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

func mustVehicle(id, driverID string) *vehicle.Vehicle {
	v, err := vehicle.NewVehicle(id, "", driverID)
	if err != nil {
		panic(err)
	}
	return v
}
