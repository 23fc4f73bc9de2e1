package session

import (
	"log"
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/crewlens/crewlens/internal/layout"
)

// Manager tracks one session per selected execution and routes raw
// backend messages to the right one. Messages name their execution via
// the root record (crew.id / flow.id); messages without a root go to the
// most recently seen execution, mirroring how the backend broadcasts one
// active run at a time.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	active      string
	direction   layout.Direction
	eventBuffer int
}

// NewManager creates an empty session manager.
func NewManager(dir layout.Direction, eventBuffer int) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		direction:   dir,
		eventBuffer: eventBuffer,
	}
}

// Get returns the session for a selection, creating it on first use.
func (m *Manager) Get(selection string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(selection)
}

func (m *Manager) getLocked(selection string) *Session {
	if s, ok := m.sessions[selection]; ok {
		return s
	}
	s := New(selection, m.direction, m.eventBuffer)
	m.sessions[selection] = s
	log.Printf("session: started %s for execution %q", s.ID, selection)
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(selection string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[selection]
	return s, ok
}

// Active returns the session currently receiving rootless patches.
func (m *Manager) Active() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, false
	}
	s, ok := m.sessions[m.active]
	return s, ok
}

// Remove tears down a session; its snapshot is discarded, not persisted.
func (m *Manager) Remove(selection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[selection]; ok {
		s.Reset()
		delete(m.sessions, selection)
		if m.active == selection {
			m.active = ""
		}
	}
}

// Selections lists known execution ids, sorted for stable API output.
func (m *Manager) Selections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dispatch routes one raw message from the transport. It sniffs the root
// id without a full decode, resolves the target session, and applies the
// message under that session's current epoch. Delivery must stay FIFO per
// connection, so Dispatch is intended to be called from the single
// transport read loop.
func (m *Manager) Dispatch(raw []byte) error {
	id := gjson.GetBytes(raw, "crew.id").String()
	if id == "" {
		id = gjson.GetBytes(raw, "flow.id").String()
	}

	m.mu.Lock()
	if id != "" {
		m.active = id
	} else {
		id = m.active
	}
	if id == "" {
		m.mu.Unlock()
		// No root seen yet and the patch names none; nothing to merge onto.
		log.Printf("session: dropping update with no execution id")
		return nil
	}
	s := m.getLocked(id)
	m.mu.Unlock()

	return s.Apply(s.Epoch(), raw)
}
