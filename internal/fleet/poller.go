package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Lister is anything that can produce a point-in-time fleet snapshot.
type Lister interface {
	Snapshot() []Snapshot
}

// PollStream is the degraded delivery mode: it re-reads the snapshot on a
// fixed interval and emits vehicles whose timestamp or status changed since
// the previous read.
type PollStream struct {
	source   Lister
	filter   Filter
	interval time.Duration
	logger   *zap.Logger

	seen   map[string]Snapshot
	events chan Snapshot
	cancel context.CancelFunc
	once   sync.Once
}

// NewPollStream starts polling source. baseline is what the caller already
// showed the viewer; those entries are not re-emitted unless they change.
func NewPollStream(ctx context.Context, source Lister, filter Filter, interval time.Duration, baseline []Snapshot, logger *zap.Logger) *PollStream {
	ctx, cancel := context.WithCancel(ctx)
	p := &PollStream{
		source:   source,
		filter:   filter,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]Snapshot, len(baseline)),
		events:   make(chan Snapshot),
		cancel:   cancel,
	}
	for _, snap := range baseline {
		p.seen[snap.VehicleID] = snap
	}
	go p.run(ctx)
	return p
}

// Events yields changed vehicles. It is closed after Close.
func (p *PollStream) Events() <-chan Snapshot { return p.events }

// Close stops polling.
func (p *PollStream) Close() {
	p.once.Do(p.cancel)
}

func (p *PollStream) run(ctx context.Context) {
	defer close(p.events)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !p.tick(ctx) {
				return
			}
		}
	}
}

func (p *PollStream) tick(ctx context.Context) bool {
	changed := p.detectChanges(p.source.Snapshot())
	if len(changed) > 0 {
		p.logger.Debug("poll detected changes", zap.Int("count", len(changed)))
	}
	for _, snap := range changed {
		select {
		case p.events <- snap:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (p *PollStream) detectChanges(in []Snapshot) []Snapshot {
	var out []Snapshot
	for _, snap := range in {
		if !p.filter.Matches(snap.VehicleID) {
			continue
		}
		prev, ok := p.seen[snap.VehicleID]
		if ok && !snap.Timestamp.After(prev.Timestamp) && snap.Status == prev.Status {
			continue
		}
		p.seen[snap.VehicleID] = snap
		out = append(out, snap)
	}
	return out
}
