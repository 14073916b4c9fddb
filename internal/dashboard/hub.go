// Package dashboard runs the service side of the operations dashboard: the
// queue poller, the replay-latest hub that fans snapshots out to consumers,
// and the cached staging/production comparator.
package dashboard

import "sync"

// Hub broadcasts values to subscribers and replays the latest value to new
// ones. A subscriber that falls behind only sees the newest value.
type Hub[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	subs   map[int]chan T
	nextID int
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]chan T)}
}

// Publish stores v as the latest value and delivers it to every subscriber.
// It never blocks on a slow subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = v
	h.has = true
	for _, ch := range h.subs {
		offer(ch, v)
	}
}

// Latest returns the most recently published value.
func (h *Hub[T]) Latest() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.has
}

// Subscribe registers a subscriber. The channel receives the latest value
// right away when one exists. cancel unregisters and closes the channel; it
// is safe to call more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan T, 1)
	if h.has {
		ch <- h.latest
	}
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// offer replaces any undelivered value in ch with v. Callers hold the hub
// lock, so no other sender races the swap.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
