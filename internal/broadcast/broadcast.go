// Package broadcast implements the Result Broadcaster (C7): best-effort
// fan-out of BatchResults to subscribers of a game's results topic.
// Each current subscriber gets a result at most once; a subscriber
// whose buffer is full misses it, and a missed result is not resent. Grounded directly on the bonus service's
// NotificationHub (subscribers map[string][]chan W + sync.RWMutex,
// Subscribe/Notify), generalized from wagering updates to batch
// results and given an unsubscribe path the original hub lacked.
package broadcast

import (
	"sync"

	"luckengine/internal/reward"
)

// defaultBufferSize bounds a subscriber channel so one slow reader
// cannot block publish for everyone else; a full channel drops the
// message for that subscriber, consistent with "best-effort" delivery.
const defaultBufferSize = 32

// Hub fans out BatchResults to subscribers of topic
// game/{gameId}/results.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *reward.BatchResult
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string][]chan *reward.BatchResult)}
}

// Subscribe registers a new listener for gameId's results and returns
// the channel to read from and a cancel func to unsubscribe.
func (h *Hub) Subscribe(gameID string) (<-chan *reward.BatchResult, func()) {
	ch := make(chan *reward.BatchResult, defaultBufferSize)

	h.mu.Lock()
	h.subscribers[gameID] = append(h.subscribers[gameID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[gameID]
		for i, c := range subs {
			if c == ch {
				h.subscribers[gameID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(h.subscribers[gameID]) == 0 {
			delete(h.subscribers, gameID)
		}
	}
	return ch, cancel
}

// Publish delivers result to every current subscriber of gameId.
// Delivery is non-blocking: a subscriber whose buffer is full misses
// this result rather than stalling the broadcaster.
func (h *Hub) Publish(gameID string, result *reward.BatchResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers[gameID] {
		select {
		case ch <- result:
		default:
		}
	}
}
