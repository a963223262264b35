/*
Package broadcast fans committed order events out to in-process
subscribers.

PURPOSE:
  Decouples command execution from consumers (cloud sync, websocket
  bridges, projections). The orders manager publishes exactly once per
  committed event; subscribers receive over buffered channels.

DELIVERY SEMANTICS:
  Delivery is bounded and lossy. Publish never blocks: if a
  subscriber's buffer is full the event is dropped for that subscriber
  and its lag signal fires. A lagging consumer is expected to resync
  from the store (EventsSince) rather than stall the writer.

CRITICAL INVARIANTS:
  1. Publish never blocks, regardless of subscriber behavior
  2. A slow subscriber only loses its own events
  3. After a lag signal, the subscriber's Missed() count is non-zero
     until it resyncs and calls ResetMissed()

SEE ALSO:
  - ledger/manager.go: the single publisher
  - cloudsync/pusher.go: the main consumer
*/
package broadcast

import (
	"sync"

	"github.com/mesa/pos-edge/ledger"
)

// Subscription is one consumer's view of the event stream.
type Subscription struct {
	hub    *Hub
	events chan ledger.OrderEvent
	lag    chan struct{}

	mu     sync.Mutex
	missed uint64
	closed bool
}

// Events delivers committed events in publish order, minus any dropped
// while the buffer was full.
func (s *Subscription) Events() <-chan ledger.OrderEvent {
	return s.events
}

// Lag fires (capacity one, coalesced) when at least one event has been
// dropped since the last receive on it.
func (s *Subscription) Lag() <-chan struct{} {
	return s.lag
}

// Missed reports how many events were dropped since the last reset.
func (s *Subscription) Missed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missed
}

// ResetMissed clears the drop counter, typically after a store resync.
func (s *Subscription) ResetMissed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed = 0
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

func (s *Subscription) deliver(e ledger.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- e:
	default:
		// Buffer full: drop and signal lag without blocking.
		s.missed++
		select {
		case s.lag <- struct{}{}:
		default:
		}
	}
}

// Hub is the process-wide fan-out point for committed order events.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	bufSize int
}

// NewHub creates a hub whose subscribers buffer up to bufSize events.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a new consumer.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:    h,
		events: make(chan ledger.OrderEvent, h.bufSize),
		lag:    make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish hands one committed event to every subscriber. Never blocks.
func (h *Hub) Publish(e ledger.OrderEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		sub.deliver(e)
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.events)
	}
	sub.mu.Unlock()
}
