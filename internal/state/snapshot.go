package state

// Snapshot is the canonical merged view of one execution. Participants keep
// their insertion order, which is the final ordering tie-break for the
// graph builder.
type Snapshot struct {
	Root         *Root
	participants []*Participant
	index        map[string]int // participant id -> position in participants
}

// NewSnapshot returns an empty snapshot for a freshly started session.
func NewSnapshot() *Snapshot {
	return &Snapshot{index: make(map[string]int)}
}

// Participants returns the participants in insertion order. The returned
// slice is shared; callers must treat it as read-only.
func (s *Snapshot) Participants() []*Participant {
	return s.participants
}

// Participant looks up a participant by id.
func (s *Snapshot) Participant(id string) (*Participant, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.participants[i], true
}

// Len returns the number of participants.
func (s *Snapshot) Len() int { return len(s.participants) }

// clone makes a shallow copy: the slice and index are fresh, the
// participant records are shared until a patch touches them.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Root:         s.Root,
		participants: append([]*Participant(nil), s.participants...),
		index:        make(map[string]int, len(s.index)),
	}
	for id, i := range s.index {
		c.index[id] = i
	}
	return c
}
