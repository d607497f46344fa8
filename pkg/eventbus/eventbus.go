// Package eventbus fans out per-job partial/final streams to multiple
// subscribers and maintains a bounded, newest-first telemetry ring
// keyed by traceId.
package eventbus

import (
	"sync"

	"github.com/uicp/engine/pkg/model"
)

// TelemetryRingCapacity is the ring's total trace capacity.
const TelemetryRingCapacity = 200

// PerTraceEventCap bounds how many events one trace entry retains.
const PerTraceEventCap = 80

// JobEvent is one item on a job's stream: exactly one of Partial or
// Final is set.
type JobEvent struct {
	Partial *model.PartialFrame
	Final   *model.FinalEvent
}

// Subscription is a job's event stream; Close unregisters it.
type Subscription struct {
	ch     chan JobEvent
	bus    *Bus
	jobID  string
	closed bool
	mu     sync.Mutex
}

func (s *Subscription) Events() <-chan JobEvent { return s.ch }

func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.unsubscribe(s.jobID, s)
}

// traceEntry is one upserted telemetry record: the most recent ~80
// events observed for a traceId, FIFO on overflow.
type traceEntry struct {
	traceID string
	events  []model.PartialFrame
	finals  []model.FinalEvent
}

// Bus is the event bus and telemetry ring. Zero value is not usable;
// construct with New.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Subscription

	// ring is ordered newest-first by recency of last touch.
	ring     []*traceEntry
	byTrace  map[string]*traceEntry
	capacity int
}

// New builds a Bus with the default telemetry ring capacity.
func New() *Bus {
	return &Bus{
		subs:     make(map[string][]*Subscription),
		byTrace:  make(map[string]*traceEntry),
		capacity: TelemetryRingCapacity,
	}
}

// Subscribe registers a new subscriber to jobID's partial/final stream.
// The channel is closed once the job's Final has been delivered.
func (b *Bus) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{ch: make(chan JobEvent, 64), bus: b, jobID: jobID}
	b.subs[jobID] = append(b.subs[jobID], sub)
	return sub
}

func (b *Bus) unsubscribe(jobID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[jobID]
	for i, s := range subs {
		if s == sub {
			b.subs[jobID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(sub.ch)
}

// PublishPartial forwards a partial frame to jobID's subscribers and
// records it in the traceId telemetry ring, if traceID is non-empty.
func (b *Bus) PublishPartial(traceID string, frame model.PartialFrame) {
	b.mu.Lock()
	for _, sub := range b.subs[frame.JobID] {
		select {
		case sub.ch <- JobEvent{Partial: &frame}:
		default:
		}
	}
	if traceID != "" {
		e := b.entry(traceID)
		e.events = append(e.events, frame)
		if len(e.events) > PerTraceEventCap {
			e.events = e.events[len(e.events)-PerTraceEventCap:]
		}
	}
	b.mu.Unlock()
}

// PublishFinal forwards the terminal event, records it in the ring,
// then closes and removes every subscriber for the job.
func (b *Bus) PublishFinal(traceID string, final model.FinalEvent) {
	b.mu.Lock()
	for _, sub := range b.subs[final.JobID] {
		select {
		case sub.ch <- JobEvent{Final: &final}:
		default:
		}
	}
	if traceID != "" {
		e := b.entry(traceID)
		e.finals = append(e.finals, final)
	}
	subs := b.subs[final.JobID]
	delete(b.subs, final.JobID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}
}

// entry returns traceID's ring entry, upserting and moving it to the
// front (newest-first); at capacity, the oldest entry is evicted.
// Caller must hold b.mu.
func (b *Bus) entry(traceID string) *traceEntry {
	if e, ok := b.byTrace[traceID]; ok {
		b.moveToFront(e)
		return e
	}
	e := &traceEntry{traceID: traceID}
	b.byTrace[traceID] = e
	b.ring = append([]*traceEntry{e}, b.ring...)
	if len(b.ring) > b.capacity {
		evicted := b.ring[len(b.ring)-1]
		b.ring = b.ring[:len(b.ring)-1]
		delete(b.byTrace, evicted.traceID)
	}
	return e
}

func (b *Bus) moveToFront(e *traceEntry) {
	for i, cur := range b.ring {
		if cur == e {
			b.ring = append(b.ring[:i], b.ring[i+1:]...)
			b.ring = append([]*traceEntry{e}, b.ring...)
			return
		}
	}
}

// TraceSnapshot is a point-in-time, immutable copy of one trace's
// recorded events.
type TraceSnapshot struct {
	TraceID string
	Events  []model.PartialFrame
	Finals  []model.FinalEvent
}

// Snapshot returns up to limit traces, newest-first, as independent
// copies safe to retain after the bus mutates further. limit <= 0
// means no limit.
func (b *Bus) Snapshot(limit int) []TraceSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.ring)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]TraceSnapshot, 0, n)
	for i := 0; i < n; i++ {
		e := b.ring[i]
		out = append(out, TraceSnapshot{
			TraceID: e.traceID,
			Events:  append([]model.PartialFrame(nil), e.events...),
			Finals:  append([]model.FinalEvent(nil), e.finals...),
		})
	}
	return out
}
