package fleet

import (
	"iter"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
)

// Publisher receives every change applied to the fleet state.
type Publisher interface {
	Publish(snap Snapshot)
}

type entry struct {
	mu   sync.Mutex
	snap Snapshot
}

// known reports whether the entry holds a position. Callers hold e.mu.
func (e *entry) known() bool { return e.snap.VehicleID != "" }

// State is the in-memory table of last known positions. Vehicles are
// independent: each has its own lock, and a change is published while that
// lock is held so subscribers see one vehicle's changes in application order.
type State struct {
	mu       sync.RWMutex
	vehicles map[string]*entry
	pub      Publisher
	logger   *zap.Logger
}

// NewState creates an empty State that publishes changes to pub.
func NewState(pub Publisher, logger *zap.Logger) *State {
	return &State{
		vehicles: make(map[string]*entry),
		pub:      pub,
		logger:   logger,
	}
}

// Ingest applies a position report. It returns false without changing
// anything when the report is not newer than the stored one.
func (s *State) Ingest(vehicleID string, pos vehicle.Position, status vehicle.Status) bool {
	e := s.entryFor(vehicleID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.known() && !pos.Timestamp.After(e.snap.Timestamp) {
		s.logger.Debug("stale position discarded",
			zap.String("vehicle_id", vehicleID),
			zap.Time("reported_at", pos.Timestamp),
			zap.Time("stored_at", e.snap.Timestamp),
		)
		return false
	}

	if status == "" {
		status = e.snap.Status
	}
	if status == "" {
		status = vehicle.StatusEnRoute
	}

	e.snap = Snapshot{
		VehicleID: vehicleID,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Timestamp: pos.Timestamp,
		Status:    status,
	}
	if s.pub != nil {
		s.pub.Publish(e.snap)
	}
	return true
}

// SetStatus changes the status of a vehicle that has reported at least once
// and publishes the change. It returns false for unknown vehicles.
func (s *State) SetStatus(vehicleID string, status vehicle.Status) bool {
	s.mu.RLock()
	e, ok := s.vehicles[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.known() {
		return false
	}
	if e.snap.Status == status {
		return true
	}
	e.snap.Status = status
	if s.pub != nil {
		s.pub.Publish(e.snap)
	}
	return true
}

// Seed loads a snapshot without publishing it. Used to warm the table from
// the store on startup; older snapshots than the stored one are ignored.
func (s *State) Seed(snap Snapshot) {
	e := s.entryFor(snap.VehicleID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.known() || snap.Timestamp.After(e.snap.Timestamp) {
		e.snap = snap
	}
}

// Get returns the current snapshot for vehicleID, or false if it never reported.
func (s *State) Get(vehicleID string) (Snapshot, bool) {
	s.mu.RLock()
	e, ok := s.vehicles[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, e.known()
}

// List returns a finite sequence over the positions known at call time,
// ordered by vehicle id. It is not a live view.
func (s *State) List() iter.Seq[Snapshot] {
	snaps := s.collect()
	return slices.Values(snaps)
}

// Snapshot is List collected into a slice.
func (s *State) Snapshot() []Snapshot {
	return s.collect()
}

// Len returns the number of vehicles with a known position.
func (s *State) Len() int {
	return len(s.collect())
}

func (s *State) collect() []Snapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.vehicles))
	for _, e := range s.vehicles {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.known() {
			out = append(out, e.snap)
		}
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.VehicleID, b.VehicleID)
	})
	return out
}

func (s *State) entryFor(vehicleID string) *entry {
	s.mu.RLock()
	e, ok := s.vehicles[vehicleID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.vehicles[vehicleID]; ok {
		return e
	}
	e = &entry{}
	s.vehicles[vehicleID] = e
	return e
}
