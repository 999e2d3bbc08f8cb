package fleet

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSlowSubscriber is recorded on a subscription the hub dropped because its
// backlog grew past the configured limit.
var ErrSlowSubscriber = errors.New("subscriber fell too far behind")

// HubOptions tunes per-subscriber buffering.
type HubOptions struct {
	// Buffer is the capacity of each subscription's Events channel.
	Buffer int
	// MaxPending bounds the backlog held for a subscriber that is not
	// reading. Zero means unbounded.
	MaxPending int
}

// Hub fans fleet changes out to subscribers. Each subscription has its own
// FIFO backlog and delivery goroutine, so a slow reader never blocks
// Publish or other subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscription
	opts        HubOptions
	logger      *zap.Logger
}

// NewHub creates a Hub.
func NewHub(opts HubOptions, logger *zap.Logger) *Hub {
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscription),
		opts:        opts,
		logger:      logger,
	}
}

// Subscribe registers a subscriber for vehicles matching filter.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:         uuid.New(),
		hub:        h,
		filter:     filter,
		events:     make(chan Snapshot, h.opts.Buffer),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		maxPending: h.opts.MaxPending,
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	go sub.pump()

	h.logger.Debug("subscriber added",
		zap.String("subscription_id", sub.id.String()),
		zap.Strings("vehicle_ids", filter.VehicleIDs),
	)
	return sub
}

// Unsubscribe removes sub and drops anything still queued for it. Calling it
// more than once is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.unsubscribe(sub, nil)
}

// Publish queues snap for every matching subscriber.
func (h *Hub) Publish(snap Snapshot) {
	var slow []*Subscription

	h.mu.RLock()
	for _, sub := range h.subscribers {
		if !sub.filter.Matches(snap.VehicleID) {
			continue
		}
		if !sub.enqueue(snap) {
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("dropping slow subscriber",
			zap.String("subscription_id", sub.id.String()),
			zap.Int("max_pending", sub.maxPending),
		)
		h.unsubscribe(sub, ErrSlowSubscriber)
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.unsubscribe(sub, nil)
	}
}

func (h *Hub) unsubscribe(sub *Subscription, reason error) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subscribers, sub.id)
		h.mu.Unlock()

		sub.mu.Lock()
		sub.closed = true
		sub.err = reason
		sub.pending = nil
		sub.mu.Unlock()

		close(sub.done)

		h.logger.Debug("subscriber removed", zap.String("subscription_id", sub.id.String()))
	})
}

// Subscription is one viewer's ordered feed of changes.
type Subscription struct {
	id     uuid.UUID
	hub    *Hub
	filter Filter
	events chan Snapshot

	mu         sync.Mutex
	pending    []Snapshot
	closed     bool
	err        error
	maxPending int

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// ID returns the subscription id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Events yields changes in per-vehicle application order. It is closed after
// the subscription ends.
func (s *Subscription) Events() <-chan Snapshot { return s.events }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns why the hub ended the subscription, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) enqueue(snap Snapshot) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	if s.maxPending > 0 && len(s.pending) >= s.maxPending {
		s.mu.Unlock()
		return false
	}
	s.pending = append(s.pending, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.pending[0]
		s.pending[0] = Snapshot{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.events <- next:
		case <-s.done:
			return
		}
	}
}
