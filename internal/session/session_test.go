package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/crewlens/crewlens/internal/layout"
)

func TestApplyBuildsFrame(t *testing.T) {
	s := New("c1", layout.Vertical, 16)

	err := s.Apply(s.Epoch(), []byte(`{"crew":{"id":"c1","status":"running"},"agents":[{"id":"a1","role":"researcher"}]}`))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	f := s.Frame()
	if f == nil {
		t.Fatal("no frame after apply")
	}
	if len(f.Graph.Nodes) != 2 {
		t.Errorf("frame has %d nodes, want 2", len(f.Graph.Nodes))
	}
	if f.Bounds.Width <= 0 || f.Bounds.Height <= 0 {
		t.Errorf("degenerate bounds: %+v", f.Bounds)
	}
	if f.Generation != 1 {
		t.Errorf("generation = %d, want 1", f.Generation)
	}
}

func TestStaleEpochDiscarded(t *testing.T) {
	s := New("c1", layout.Vertical, 16)
	if err := s.Apply(s.Epoch(), []byte(`{"crew":{"id":"c1","status":"running"}}`)); err != nil {
		t.Fatal(err)
	}

	// A slow late-arriving patch captured the epoch, then the user
	// switched selections (Reset bumps the epoch).
	staleEpoch := s.Epoch()
	s.Reset()

	if err := s.Apply(staleEpoch, []byte(`{"agents":[{"id":"ghost"}]}`)); err != nil {
		t.Fatalf("stale apply should be a silent drop, got %v", err)
	}
	if s.Frame() != nil {
		t.Error("stale result was applied to the new selection state")
	}
	if s.Snapshot().Len() != 0 {
		t.Error("stale participants leaked into the reset snapshot")
	}
}

func TestParseErrorKeepsLastKnownGood(t *testing.T) {
	s := New("c1", layout.Vertical, 16)
	if err := s.Apply(s.Epoch(), []byte(`{"crew":{"id":"c1"},"agents":[{"id":"a1"}]}`)); err != nil {
		t.Fatal(err)
	}
	gen := s.Generation()

	if err := s.Apply(s.Epoch(), []byte(`{broken`)); err == nil {
		t.Fatal("malformed update did not report an error")
	}
	if s.LastError() == nil {
		t.Error("parse error not surfaced for display")
	}
	if s.Generation() != gen {
		t.Error("malformed update advanced the generation")
	}
	if s.Snapshot().Len() != 1 {
		t.Error("malformed update disturbed the snapshot")
	}

	// A following valid patch clears the banner.
	if err := s.Apply(s.Epoch(), []byte(`{"agents":[{"id":"a2"}]}`)); err != nil {
		t.Fatal(err)
	}
	if s.LastError() != nil {
		t.Error("parse error not cleared by a successful apply")
	}
}

func TestConnectionTestDoesNotPublish(t *testing.T) {
	s := New("c1", layout.Vertical, 16)
	if err := s.Apply(s.Epoch(), []byte(`{"type":"connection_test"}`)); err != nil {
		t.Fatalf("ping returned error: %v", err)
	}
	if s.Frame() != nil || s.Generation() != 0 {
		t.Error("liveness ping was folded into the session")
	}
}

func TestSubscribeNotifies(t *testing.T) {
	s := New("c1", layout.Vertical, 16)
	ch, cancel := s.Subscribe()
	defer cancel()

	if err := s.Apply(s.Epoch(), []byte(`{"crew":{"id":"c1"}}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after publish")
	}

	cancel()
	if err := s.Apply(s.Epoch(), []byte(`{"agents":[{"id":"a1"}]}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
		t.Error("notified after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetDirectionRelaysOut(t *testing.T) {
	s := New("c1", layout.Vertical, 16)
	if err := s.Apply(s.Epoch(), []byte(`{"crew":{"id":"c1"},"tasks":[{"id":"t1"},{"id":"t2"}]}`)); err != nil {
		t.Fatal(err)
	}
	vertical := s.Frame()

	s.SetDirection(layout.Horizontal)
	horizontal := s.Frame()
	if horizontal.Generation <= vertical.Generation {
		t.Fatal("direction change did not publish a new frame")
	}
	if horizontal.Bounds == vertical.Bounds {
		t.Error("bounds unchanged after axis flip")
	}
}

func TestHistoryBackfill(t *testing.T) {
	s := New("c1", layout.Vertical, 4)
	for i := 0; i < 6; i++ {
		raw := []byte(fmt.Sprintf(`{"crew":{"id":"c1"},"tasks":[{"id":"t%d"}]}`, i))
		if err := s.Apply(s.Epoch(), raw); err != nil {
			t.Fatal(err)
		}
	}

	if s.EventPosition() != 6 {
		t.Errorf("event position = %d, want 6", s.EventPosition())
	}
	recent := s.RecentEvents(10)
	if len(recent) != 4 {
		t.Fatalf("ring kept %d events, want capacity 4", len(recent))
	}
	// Oldest first, and the oldest two were overwritten.
	if string(recent[0].Raw) != `{"crew":{"id":"c1"},"tasks":[{"id":"t2"}]}` {
		t.Errorf("unexpected oldest event: %s", recent[0].Raw)
	}
}

func TestManagerDispatchRouting(t *testing.T) {
	m := NewManager(layout.Vertical, 16)

	if err := m.Dispatch([]byte(`{"crew":{"id":"c1","status":"running"}}`)); err != nil {
		t.Fatal(err)
	}
	// Rootless patch goes to the active execution.
	if err := m.Dispatch([]byte(`{"agents":[{"id":"a1"}]}`)); err != nil {
		t.Fatal(err)
	}

	s, ok := m.Lookup("c1")
	if !ok {
		t.Fatal("session for c1 not created")
	}
	if s.Snapshot().Len() != 1 {
		t.Errorf("rootless patch not routed to active session")
	}

	// A different execution id starts its own session.
	if err := m.Dispatch([]byte(`{"flow":{"id":"f1"}}`)); err != nil {
		t.Fatal(err)
	}
	if len(m.Selections()) != 2 {
		t.Errorf("selections = %v, want two", m.Selections())
	}
	active, _ := m.Active()
	if active.Selection != "f1" {
		t.Errorf("active = %q, want f1", active.Selection)
	}
}

func TestManagerDropsRootlessBeforeFirstRoot(t *testing.T) {
	m := NewManager(layout.Vertical, 16)
	if err := m.Dispatch([]byte(`{"agents":[{"id":"a1"}]}`)); err != nil {
		t.Fatalf("orphan patch should be dropped quietly, got %v", err)
	}
	if len(m.Selections()) != 0 {
		t.Error("orphan patch created a session")
	}
}

func TestManagerRemoveDiscardsState(t *testing.T) {
	m := NewManager(layout.Vertical, 16)
	if err := m.Dispatch([]byte(`{"crew":{"id":"c1"}}`)); err != nil {
		t.Fatal(err)
	}
	m.Remove("c1")
	if _, ok := m.Lookup("c1"); ok {
		t.Error("session survived removal")
	}
	if _, ok := m.Active(); ok {
		t.Error("removed session still active")
	}
}
