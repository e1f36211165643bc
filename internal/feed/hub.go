package feed

import "sync"

// Hub routes events to the subscribers of the matching user. One logical
// subscription exists per session; subscriptions never survive an identity
// change because the unsubscribe func is bound to the session lifetime.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]Subscriber
	next int
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]Subscriber)}
}

// Subscribe registers a subscriber for events whose user_id matches userID.
// The returned func removes the subscription.
func (h *Hub) Subscribe(userID string, sub Subscriber) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]Subscriber)
	}
	h.next++
	token := h.next
	h.subs[userID][token] = sub

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], token)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Dispatch delivers an event to the matching user's subscribers. Events for
// users with no active session are dropped; they will be picked up by the
// initial fetch when a session starts.
func (h *Hub) Dispatch(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[ev.UserID] {
		sub.Apply(ev)
	}
}

// ResyncAll tells every subscriber to re-fetch after a transport loss.
func (h *Hub) ResyncAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userSubs := range h.subs {
		for _, sub := range userSubs {
			sub.Resync()
		}
	}
}

// Subscribers reports the number of active subscriptions for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
