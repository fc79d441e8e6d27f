package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscription queue length when none is given.
const DefaultBuffer = 32

// Hub routes snapshots to the subscriptions of their topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	seq    atomic.Uint64
}

// NewHub returns a hub whose subscriptions queue up to buffer snapshots.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{topics: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe opens one subscription covering every given topic.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	s := &Subscription{hub: h, topics: topics, ch: make(chan Snapshot, h.buffer)}
	h.mu.Lock()
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.topics[t] = set
		}
		set[s] = struct{}{}
	}
	h.mu.Unlock()
	subscribers.Inc()
	return s
}

// Publish delivers snap to every subscription of snap.Topic. It never
// blocks: a full subscription loses its oldest queued snapshot. Snapshots
// published without a Version get the next hub sequence number.
func (h *Hub) Publish(snap Snapshot) {
	if snap.Version == "" {
		snap.Version = fmt.Sprintf("%020d", h.seq.Add(1))
	}
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.topics[snap.Topic]))
	for s := range h.topics[snap.Topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	publishedTotal.WithLabelValues(snap.Kind).Inc()
	for _, s := range targets {
		s.deliver(snap)
	}
}

// PublishAll publishes each snapshot in order.
func (h *Hub) PublishAll(snaps ...Snapshot) {
	for _, s := range snaps {
		h.Publish(s)
	}
}

// Subscribers reports how many subscriptions listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	for _, t := range s.topics {
		if set, ok := h.topics[t]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.topics, t)
			}
		}
	}
	h.mu.Unlock()
}

// Subscription is a bounded queue of snapshots for a set of topics.
type Subscription struct {
	hub    *Hub
	topics []string
	ch     chan Snapshot

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// C returns the receive side of the queue. It is closed by Close.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Topics returns the subscribed topics.
func (s *Subscription) Topics() []string { return s.topics }

// Dropped reports how many snapshots this subscription has lost.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes and closes C. Calling it more than once is a no-op.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.hub.remove(s)
	subscribers.Dec()
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
		droppedTotal.Inc()
	default:
	}
	select {
	case s.ch <- snap:
	default:
		// the reader drained and refilled between the two selects
		s.dropped.Add(1)
		droppedTotal.Inc()
	}
}
