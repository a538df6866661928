// Package hub implements the live-update broadcast registry.
//
// Every subscriber owns a bounded FIFO queue. Publish takes a snapshot of the
// registered subscribers and enqueues without blocking, so one slow consumer
// never stalls delivery to the others. A subscriber whose queue overflows is
// dropped instead of silently losing events.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 64

var (
	// ErrSlowSubscriber is set on a subscription dropped because its queue was full.
	ErrSlowSubscriber = errors.New("subscriber queue full")
	// ErrClosed is set on subscriptions ended by Hub.Close or registered after it.
	ErrClosed = errors.New("hub closed")
)

// Subscription is one registered listener. The connection handler that
// registered it owns it and must call Close when the connection ends.
type Subscription struct {
	id  string
	hub *Hub
	ch  chan render.UpdateEvent

	mu     sync.Mutex // guards closed, err and sends on ch
	closed bool
	err    error
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// Events returns the delivery queue. It is closed once the subscription is
// unregistered; events already queued are still readable.
func (s *Subscription) Events() <-chan render.UpdateEvent { return s.ch }

// Err reports why the subscription ended: nil for a normal Close,
// ErrSlowSubscriber or ErrClosed otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unregister(s)
}

// offer enqueues ev without blocking. It returns false only when the queue
// is full; a closed subscription silently ignores the event.
func (s *Subscription) offer(ev render.UpdateEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// shutdown closes the queue once and records the reason.
func (s *Subscription) shutdown(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = reason
	close(s.ch)
}

// Hub tracks active subscriptions and fans published events out to them.
type Hub struct {
	queueSize int

	pubMu sync.Mutex // serializes Publish so every subscriber sees one global order

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a hub whose subscribers buffer up to queueSize events each.
func New(queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Register adds a new subscription. It receives every event published after
// Register returns and none published before. Registering on a closed hub
// returns an already-ended subscription.
func (h *Hub) Register() *Subscription {
	s := &Subscription{
		id:  uuid.NewString(),
		hub: h,
		ch:  make(chan render.UpdateEvent, h.queueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.shutdown(ErrClosed)
		return s
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	slog.Debug("subscriber registered", "subscriber_id", s.id, "subscribers", n)
	return s
}

// Unregister removes s and closes its queue. Once it returns no further
// event is enqueued on s. Unknown or already removed subscriptions are ignored.
func (h *Hub) Unregister(s *Subscription) {
	h.remove(s, nil)
}

func (h *Hub) remove(s *Subscription, reason error) {
	if s == nil {
		return
	}

	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	s.shutdown(reason)
	if ok {
		slog.Debug("subscriber unregistered", "subscriber_id", s.id, "subscribers", n, "reason", reason)
	}
}

// Publish delivers ev to every subscription registered at the time of the call.
// It never waits for consumers.
func (h *Hub) Publish(_ context.Context, ev render.UpdateEvent) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		if !s.offer(ev) {
			slog.Warn("dropping slow subscriber", "subscriber_id", s.id, "queue_size", h.queueSize)
			h.remove(s, ErrSlowSubscriber)
		}
	}
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects future registrations.
// Live-update streams observe their queue closing and return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.shutdown(ErrClosed)
	}
	slog.Info("hub closed", "subscribers", len(subs))
}
