package realtime

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBuffer = 32

// Subscription receives the changes matching its filter until closed.
type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan Change
	once   sync.Once
}

// C returns the delivery channel. It is closed when the subscription or the
// hub closes.
func (s *Subscription) C() <-chan Change {
	return s.ch
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans changes out to in-process subscribers. A subscriber that does not
// keep up loses changes rather than blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*Subscription]struct{}), logger: logger.With("component", "realtime.hub")}
}

// Subscribe registers a subscriber for changes matching filter.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{hub: h, filter: filter, ch: make(chan Change, defaultBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers c to every matching subscriber.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.filter.Matches(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			h.logger.WarnContext(ctx, "dropping change for slow subscriber", "table", c.Table, "record_id", c.RecordID)
		}
	}
	return nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
	}
	sub.once.Do(func() { close(sub.ch) })
}
