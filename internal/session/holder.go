package session

import "sync"

// Holder is the single source of truth for the current session. Reads and
// replacements are atomic, and every replacement fans out a snapshot to
// subscribers.
type Holder struct {
	mu      sync.RWMutex
	current Session
	subs    map[int]chan Session
	nextID  int
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{subs: make(map[int]chan Session)}
}

// Current returns the session snapshot.
func (h *Holder) Current() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Replace swaps in the new session and notifies subscribers. A subscriber
// that has fallen behind loses its oldest snapshot, never the newest.
func (h *Holder) Replace(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = s
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Subscribe registers for session change notifications. The returned cancel
// func releases the subscription.
func (h *Holder) Subscribe() (<-chan Session, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Session, 8)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return ch, cancel
}
