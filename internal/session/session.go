// Package session owns the per-execution visualization state. A session
// holds the canonical snapshot for exactly one selected execution and
// runs the merge -> build -> layout pipeline on every received message.
// The pipeline stages themselves are pure; the session is the thin
// stateful adapter around them.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewlens/crewlens/internal/graph"
	"github.com/crewlens/crewlens/internal/layout"
	"github.com/crewlens/crewlens/internal/state"
)

// Frame is one fully derived view: the snapshot it came from, the
// positioned graph, and the bounds for viewport fitting. Frames are
// immutable once published.
type Frame struct {
	Selection  string        `json:"selection"`
	Epoch      uint64        `json:"epoch"`
	Generation uint64        `json:"generation"`
	Graph      *graph.Graph  `json:"graph"`
	Bounds     layout.Bounds `json:"bounds"`
}

// Session reconciles one execution's update stream. All methods are safe
// for concurrent use, but patches for the same session must be applied
// from a single goroutine to preserve the transport's FIFO order.
type Session struct {
	ID        string
	Selection string

	mu         sync.RWMutex
	epoch      uint64
	generation uint64
	direction  layout.Direction
	snapshot   *state.Snapshot
	frame      *Frame
	lastErr    error
	events     *history

	subMu   sync.Mutex
	subs    map[uint64]chan struct{}
	nextSub uint64
}

// New creates a session for one selection id.
func New(selection string, dir layout.Direction, eventBuffer int) *Session {
	if dir == "" {
		dir = layout.Vertical
	}
	return &Session{
		ID:        uuid.NewString(),
		Selection: selection,
		direction: dir,
		snapshot:  state.NewSnapshot(),
		events:    newHistory(eventBuffer),
		subs:      make(map[uint64]chan struct{}),
	}
}

// Epoch returns the current selection epoch. A delivery pipeline captures
// this before it starts applying results; Apply rejects anything tagged
// with an older epoch.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Reset discards accumulated state and bumps the epoch so that any
// in-flight result computed for the previous selection state is dropped
// on arrival instead of applied.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.snapshot = state.NewSnapshot()
	s.frame = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// Apply decodes one raw message and runs the full pipeline. epoch must be
// the value captured from Epoch() when the delivery started; a stale
// epoch means the selection moved on and the message is silently dropped.
//
// Parse failures leave the snapshot at its last-known-good value and are
// remembered for display; they never abort the session.
func (s *Session) Apply(epoch uint64, raw []byte) error {
	u, err := state.DecodeUpdate(raw)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		log.Printf("session %s: dropping malformed update: %v", s.Selection, err)
		return err
	}
	if u == nil {
		// Liveness ping.
		return nil
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		log.Printf("session %s: discarding stale result (epoch %d, now %d)", s.Selection, epoch, s.epoch)
		return nil
	}

	next := state.Merge(s.snapshot, u)
	g := graph.Build(next, graph.PolicyFrom(next))
	bounds := layout.Assign(g, s.direction)

	s.snapshot = next
	s.generation++
	s.lastErr = nil
	s.frame = &Frame{
		Selection:  s.Selection,
		Epoch:      s.epoch,
		Generation: s.generation,
		Graph:      g,
		Bounds:     bounds,
	}
	s.events.add(Event{Raw: raw, ReceivedAt: time.Now()})
	s.mu.Unlock()

	s.notify()
	return nil
}

// Frame returns the latest published frame, or nil before the first
// successful apply.
func (s *Session) Frame() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Snapshot returns the current canonical snapshot.
func (s *Session) Snapshot() *state.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Generation counts successful applies, for cheap change detection.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// LastError returns the most recent parse error, cleared by the next
// successful apply.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SetDirection changes the layout axis and relays out the current
// snapshot so the next Frame() reflects it.
func (s *Session) SetDirection(dir layout.Direction) {
	if dir != layout.Vertical && dir != layout.Horizontal {
		return
	}
	s.mu.Lock()
	if s.direction == dir {
		s.mu.Unlock()
		return
	}
	s.direction = dir
	if s.frame != nil {
		g := graph.Build(s.snapshot, graph.PolicyFrom(s.snapshot))
		bounds := layout.Assign(g, dir)
		s.generation++
		s.frame = &Frame{
			Selection:  s.Selection,
			Epoch:      s.epoch,
			Generation: s.generation,
			Graph:      g,
			Bounds:     bounds,
		}
	}
	s.mu.Unlock()
	s.notify()
}

// RecentEvents returns up to n most recent raw messages, oldest first.
func (s *Session) RecentEvents(n int) []Event {
	return s.events.recent(n)
}

// EventPosition returns the absolute count of applied events.
func (s *Session) EventPosition() int {
	return s.events.position()
}

// Subscribe returns a channel that receives a signal whenever a new frame
// is published, plus an unsubscribe function. Signals are coalesced: a
// slow reader sees at least one, not necessarily all.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
