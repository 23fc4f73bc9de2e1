package session

import (
	"sync"
	"time"
)

// Event is one raw message received for a session, kept for backfill when
// a viewer connects mid-run.
type Event struct {
	Raw        []byte
	ReceivedAt time.Time
}

// history is a fixed-capacity ring of recent events. When full, a new
// event overwrites the oldest. Position() is the absolute count of events
// added, which lets a websocket handler read only the delta since its
// last send.
type history struct {
	mu    sync.RWMutex
	items []Event
	head  int
	size  int
	total int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 256
	}
	return &history{items: make([]Event, capacity)}
}

func (h *history) add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[h.head] = e
	h.head = (h.head + 1) % len(h.items)
	if h.size < len(h.items) {
		h.size++
	}
	h.total++
}

// recent returns up to n most recent events, oldest first.
func (h *history) recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, 0, n)
	start := (h.head - n + len(h.items)) % len(h.items)
	for i := 0; i < n; i++ {
		out = append(out, h.items[(start+i)%len(h.items)])
	}
	return out
}

// position returns the absolute number of events added so far.
func (h *history) position() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}
