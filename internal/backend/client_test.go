package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewlens/crewlens/internal/traceview"
)

const tracesBody = `{
  "status": "success",
  "traces": [
    {
      "id": "trace1",
      "crew_id": "c1",
      "crew_name": "research crew",
      "status": "completed",
      "start_time": "2026-02-03T10:00:00Z",
      "end_time": "2026-02-03T10:05:00Z",
      "agents": {
        "a1": {"id": "a1", "role": "researcher", "status": "completed",
               "start_time": "2026-02-03T10:00:10Z", "end_time": "2026-02-03T10:03:00Z"},
        "a2": {"id": "a2", "role": "writer", "status": "completed",
               "start_time": "2026-02-03T10:03:00Z", "end_time": "2026-02-03T10:05:00Z"}
      },
      "tasks": {
        "t1": {"id": "t1", "description": "dig up sources", "agent_id": "a1",
               "status": "completed", "start_time": "2026-02-03T10:00:20Z",
               "end_time": "2026-02-03T10:02:00Z"},
        "t2": {"id": "t2", "description": "draft report", "agent_id": "missing",
               "status": "running", "start_time": "2026-02-03T10:03:10Z"}
      }
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestTracesPromotesSpans(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/traces/c1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(tracesBody))
	})

	traces, err := c.Traces(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(traces) != 1 {
		t.Fatalf("traces = %d, want 1", len(traces))
	}
	tr := traces[0]

	// Root + 2 agents + 2 tasks.
	if len(tr.Spans) != 5 {
		t.Fatalf("spans = %d, want 5", len(tr.Spans))
	}
	if tr.Spans[0].ID != "trace1" || tr.Spans[0].ParentID != "" {
		t.Errorf("first span should be the trace root, got %+v", tr.Spans[0])
	}

	byID := make(map[string]*traceview.Span)
	for _, s := range tr.Spans {
		byID[s.ID] = s
	}
	if byID["a1"].ParentID != "trace1" {
		t.Errorf("agent parent = %q, want trace1", byID["a1"].ParentID)
	}
	if byID["t1"].ParentID != "a1" {
		t.Errorf("assigned task parent = %q, want a1", byID["t1"].ParentID)
	}
	// A task pointing at an unknown agent must fall back to the root,
	// never dangle.
	if byID["t2"].ParentID != "trace1" {
		t.Errorf("unassigned task parent = %q, want trace1", byID["t2"].ParentID)
	}

	// Timestamps are instants by the time they leave this package.
	want := time.Date(2026, 2, 3, 10, 0, 10, 0, time.UTC)
	if !byID["a1"].Start.Equal(want) {
		t.Errorf("a1 start = %v, want %v", byID["a1"].Start, want)
	}
	// The running task has no end time: in flight.
	if !byID["t2"].InFlight() {
		t.Error("open task not marked in flight")
	}
}

func TestTracesDeterministicOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tracesBody))
	})

	first, err := c.Traces(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Traces(context.Background(), "c1")
		if err != nil {
			t.Fatal(err)
		}
		for j := range first[0].Spans {
			if again[0].Spans[j].ID != first[0].Spans[j].ID {
				t.Fatal("span order changed between fetches of identical data")
			}
		}
	}
}

func TestTracesBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","detail":"no such execution"}`))
	})
	if _, err := c.Traces(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for error-status response")
	}
}

func TestListCrews(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/crews" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"success","crews":[{"id":"c1","name":"research crew"}]}`))
	})

	crews, err := c.ListCrews(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(crews) != 1 || crews[0].ID != "c1" || crews[0].Kind != "crew" {
		t.Errorf("crews = %+v", crews)
	}
}

func TestParseWireTimeNaiveUTC(t *testing.T) {
	got := parseWireTime("2026-02-03T10:00:00.123456")
	if got.IsZero() {
		t.Fatal("naive ISO timestamp rejected")
	}
	if parseWireTime("") != (time.Time{}) {
		t.Error("empty timestamp should be zero time")
	}
	if parseWireTime("garbage") != (time.Time{}) {
		t.Error("unparseable timestamp should collapse to zero time")
	}
}
