// ABOUTME: In-memory fan-out of inbound events to per-class subscribers
// ABOUTME: Subscriptions outlive individual connections, so they survive reconnects

package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

type subscriber struct {
	ch   chan Event
	stop func() bool // detaches the ctx cancellation hook
}

// Hub delivers events to the subscribers of their class. Delivery to a
// subscriber is in publish order; a subscriber whose buffer is full misses
// the event instead of stalling the others.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[EventClass]map[string]*subscriber // class -> subID -> sub
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a Hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[EventClass]map[string]*subscriber),
		logger:      logger.With("component", "realtime_hub"),
	}
}

// Subscribe registers for events of class. The subscription ends when ctx is
// cancelled or Unsubscribe is called; either closes the channel. Subscribing
// to a closed hub returns an already closed channel.
func (h *Hub) Subscribe(ctx context.Context, class EventClass) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[class]; !ok {
		h.subscribers[class] = make(map[string]*subscriber)
	}
	sub := &subscriber{ch: ch}
	h.subscribers[class][subID] = sub
	// AfterFunc may fire immediately on a done ctx; Unsubscribe takes the
	// lock, so stop must be set before the lock is released.
	sub.stop = context.AfterFunc(ctx, func() { h.Unsubscribe(class, subID) })
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "class", class, "sub_id", subID)

	return ch, subID
}

// Publish sends ev to every subscriber of ev.Class without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for subID, sub := range h.subscribers[ev.Class] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropped event for slow subscriber",
				"class", ev.Class,
				"sub_id", subID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(class EventClass, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[class]
	if !ok {
		return
	}
	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	sub.release()
	if len(subs) == 0 {
		delete(h.subscribers, class)
	}

	h.logger.Debug("subscriber removed", "class", class, "sub_id", subID)
}

// UnsubscribeAll removes every subscription to class.
func (h *Hub) UnsubscribeAll(class EventClass) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[class] {
		sub.release()
	}
	delete(h.subscribers, class)
}

// Subscribers returns the number of subscriptions to class.
func (h *Hub) Subscribers(class EventClass) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[class])
}

// Close closes all subscriber channels. Later subscriptions get closed channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for class, subs := range h.subscribers {
		for subID, sub := range subs {
			sub.release()
			delete(subs, subID)
		}
		delete(h.subscribers, class)
	}
	h.closed = true

	h.logger.Debug("hub closed")
}

// release detaches the context hook and closes the channel. Callers hold h.mu.
func (s *subscriber) release() {
	if s.stop != nil {
		s.stop()
	}
	close(s.ch)
}
