// Package stream implements the streaming service's fan-out core: one shared
// hot stream per topic, many SSE subscribers, each with its own bounded
// buffer and overflow policy so a slow client never blocks the upstream.
package stream

import (
	"sync"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// Policy selects what happens when a subscriber's buffer is full.
type Policy int

const (
	// DropOldest evicts the oldest undelivered item to make room.
	DropOldest Policy = iota
	// KeepLatest retains only the most recent item; the buffer is forced to
	// depth one.
	KeepLatest
)

// Subscription is one subscriber's view of a Hub. Events arrive on C; Close
// detaches the subscription and releases its buffer.
type Subscription[T any] struct {
	hub    *Hub[T]
	ch     chan T
	filter func(T) bool
	once   sync.Once
}

// C returns the subscriber's event channel. It is closed by Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.hub.detach(s)
	})
}

// Hub fans one stream of events out to N subscribers. Publishing never
// blocks: each subscriber owns a bounded buffer and its overflow policy
// decides which event to sacrifice.
type Hub[T any] struct {
	name string

	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// NewHub creates an empty hub. name labels the hub's instrumentation.
func NewHub[T any](name string) *Hub[T] {
	return &Hub[T]{
		name: name,
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe attaches a subscriber. filter may be nil to receive everything;
// events failing the filter are never buffered. buffer must be >= 1 and is
// forced to 1 under KeepLatest.
func (h *Hub[T]) Subscribe(filter func(T) bool, buffer int, policy Policy) *Subscription[T] {
	if policy == KeepLatest || buffer < 1 {
		buffer = 1
	}
	s := &Subscription[T]{
		hub:    h,
		ch:     make(chan T, buffer),
		filter: filter,
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.StreamSubscribers.WithLabelValues(h.name).Set(float64(n))
	return s
}

// Publish delivers v to every matching subscriber without blocking. On a full
// buffer the oldest undelivered event is evicted so the newest always lands.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if s.filter != nil && !s.filter(v) {
			continue
		}
		for {
			select {
			case s.ch <- v:
			default:
				select {
				case <-s.ch:
					metrics.StreamDropped.WithLabelValues(h.name).Inc()
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) detach(s *Subscription[T]) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	close(s.ch)
	metrics.StreamSubscribers.WithLabelValues(h.name).Set(float64(n))
}
