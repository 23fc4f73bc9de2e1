package state

import (
	"errors"
	"testing"
)

func decode(t *testing.T, raw string) *Update {
	t.Helper()
	u, err := DecodeUpdate([]byte(raw))
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return u
}

func TestMergeDisjointFieldsOrderIndependent(t *testing.T) {
	a := decode(t, `{"agents":[{"id":"a1","status":"running"}]}`)
	b := decode(t, `{"agents":[{"id":"a1","description":"x"}]}`)

	ab := Merge(Merge(NewSnapshot(), a), b)
	ba := Merge(Merge(NewSnapshot(), b), a)

	for _, snap := range []*Snapshot{ab, ba} {
		p, ok := snap.Participant("a1")
		if !ok {
			t.Fatal("a1 missing after merge")
		}
		if p.Status != "running" || p.Description != "x" {
			t.Errorf("got status=%q description=%q, want running/x", p.Status, p.Description)
		}
	}
}

func TestMergeNeverDeletesByOmission(t *testing.T) {
	prior := Merge(NewSnapshot(), decode(t, `{"tasks":[{"id":"t1","status":"pending"}]}`))
	next := Merge(prior, decode(t, `{"tasks":[{"id":"t2","status":"running"}]}`))

	t1, ok := next.Participant("t1")
	if !ok {
		t.Fatal("t1 dropped by a patch that did not mention it")
	}
	if t1.Status != "pending" {
		t.Errorf("t1 status = %q, want pending", t1.Status)
	}
	if _, ok := next.Participant("t2"); !ok {
		t.Fatal("t2 not inserted")
	}
	if next.Len() != 2 {
		t.Errorf("participant count = %d, want 2", next.Len())
	}
}

func TestMergeIdempotentRepeat(t *testing.T) {
	patch := decode(t, `{"crew":{"id":"c1","status":"running"},"agents":[{"id":"a1","role":"researcher"}]}`)

	once := Merge(NewSnapshot(), patch)
	twice := Merge(once, patch)

	if twice.Root.Status != "running" || twice.Len() != 1 {
		t.Errorf("repeated patch changed the snapshot: %+v", twice)
	}
	a, _ := twice.Participant("a1")
	if a.Role != "researcher" {
		t.Errorf("role = %q, want researcher", a.Role)
	}
}

func TestMergePriorUnchanged(t *testing.T) {
	prior := Merge(NewSnapshot(), decode(t, `{"agents":[{"id":"a1","status":"waiting"}]}`))
	_ = Merge(prior, decode(t, `{"agents":[{"id":"a1","status":"running"},{"id":"a2"}]}`))

	// The old frame must still be renderable as-is.
	a, _ := prior.Participant("a1")
	if a.Status != "waiting" {
		t.Errorf("prior snapshot mutated: status = %q", a.Status)
	}
	if prior.Len() != 1 {
		t.Errorf("prior snapshot grew to %d participants", prior.Len())
	}
}

func TestMergeShallowFieldsSurvivePartialPatch(t *testing.T) {
	prior := Merge(NewSnapshot(), decode(t, `{"tasks":[{"id":"t1","description":"write report","status":"pending"}]}`))
	next := Merge(prior, decode(t, `{"tasks":[{"id":"t1","status":"completed"}]}`))

	p, _ := next.Participant("t1")
	if p.Description != "write report" {
		t.Errorf("description lost on partial patch: %q", p.Description)
	}
	if p.Status != "completed" {
		t.Errorf("status = %q, want completed", p.Status)
	}
}

func TestMergeNewRootIDResetsState(t *testing.T) {
	prior := Merge(NewSnapshot(), decode(t, `{"crew":{"id":"c1","status":"running"},"agents":[{"id":"a1"}]}`))
	next := Merge(prior, decode(t, `{"crew":{"id":"c2","name":"second run","status":"running"}}`))

	if next.Root.ID != "c2" {
		t.Fatalf("root id = %q, want c2", next.Root.ID)
	}
	if next.Len() != 0 {
		t.Errorf("participants from the previous kickoff survived: %d", next.Len())
	}
	// And the superseded snapshot is intact.
	if prior.Root.ID != "c1" || prior.Len() != 1 {
		t.Error("prior snapshot mutated by reset")
	}
}

func TestMergeRootShallow(t *testing.T) {
	prior := Merge(NewSnapshot(), decode(t, `{"crew":{"id":"c1","name":"demo","status":"running","started_at":"2026-02-03T10:00:00Z"}}`))
	next := Merge(prior, decode(t, `{"crew":{"id":"c1","status":"completed","completed_at":"2026-02-03T10:05:00Z"}}`))

	if next.Root.Name != "demo" {
		t.Errorf("root name lost: %q", next.Root.Name)
	}
	if next.Root.Status != "completed" {
		t.Errorf("root status = %q", next.Root.Status)
	}
	if next.Root.StartedAt.IsZero() || next.Root.CompletedAt.IsZero() {
		t.Error("timestamps not parsed at the boundary")
	}
}

func TestDecodeConnectionTestIsNoOp(t *testing.T) {
	u, err := DecodeUpdate([]byte(`{"type":"connection_test"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Fatal("liveness ping decoded to a patch")
	}
	// Merging the nil update must hand back the same snapshot.
	snap := NewSnapshot()
	if Merge(snap, u) != snap {
		t.Error("nil update produced a new snapshot")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{`{not json`, `{"agents":"nope"}`} {
		_, err := DecodeUpdate([]byte(raw))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("DecodeUpdate(%q) error = %v, want *ParseError", raw, err)
		}
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	u := decode(t, `{"agents":[{"id":"a1","future_field":42}],"telemetry":{"x":1}}`)
	if len(u.Agents) != 1 || u.Agents[0].ID != "a1" {
		t.Fatalf("unknown fields broke decoding: %+v", u)
	}
}

func TestUpdateRootID(t *testing.T) {
	if got := decode(t, `{"flow":{"id":"f9"},"steps":[]}`).RootID(); got != "f9" {
		t.Errorf("RootID = %q, want f9", got)
	}
	if got := decode(t, `{"agents":[{"id":"a1"}]}`).RootID(); got != "" {
		t.Errorf("RootID = %q, want empty", got)
	}
}
