package traceview

import (
	"strings"
	"testing"
	"time"
)

func TestProjectEmpty(t *testing.T) {
	if got := Project(nil, ProjectOptions{}); got != nil {
		t.Errorf("Project(nil) = %v, want nil", got)
	}
}

func TestProjectZeroDurationMinWidth(t *testing.T) {
	spans := []*Span{
		span("a", "", 0, 10*time.Second),
		span("b", "a", time.Second, time.Second), // zero duration
	}
	out := Project(spans, ProjectOptions{Now: t0.Add(time.Minute)})

	if out[1].Width < DefaultMinWidth {
		t.Errorf("zero-duration bar width = %.2f, below minimum %.2f", out[1].Width, DefaultMinWidth)
	}
	if out[1].Width == 0 {
		t.Error("zero-duration bar rendered invisible")
	}
}

func TestProjectRowsFollowInputOrder(t *testing.T) {
	spans := []*Span{
		span("r", "", 0, 10*time.Second),
		span("c1", "r", time.Second, 5*time.Second),
		span("c2", "c1", 2*time.Second, 3*time.Second),
	}
	out := Project(spans, ProjectOptions{Now: t0.Add(time.Minute)})
	for i, ps := range out {
		if ps.Row != i {
			t.Errorf("row %d recorded as %d", i, ps.Row)
		}
	}
	if out[1].ParentRow != 0 || out[2].ParentRow != 1 {
		t.Errorf("parent rows = %d,%d, want 0,1", out[1].ParentRow, out[2].ParentRow)
	}
	if out[0].ParentRow != -1 {
		t.Errorf("root parent row = %d, want -1", out[0].ParentRow)
	}
}

func TestProjectPaddedRangeKeepsBarsInside(t *testing.T) {
	spans := []*Span{
		span("a", "", 0, 10*time.Second),
		span("b", "", 2*time.Second, 8*time.Second),
	}
	out := Project(spans, ProjectOptions{Now: t0.Add(time.Minute)})
	for _, ps := range out {
		if ps.X < 0 || ps.X+ps.Width > DefaultAxisWidth {
			t.Errorf("bar %s [%.1f, %.1f] escapes axis [0, %.0f]", ps.Span.ID, ps.X, ps.X+ps.Width, DefaultAxisWidth)
		}
	}
	// Padding means the earliest bar does not start at exactly zero.
	if out[0].X == 0 {
		t.Error("axis not padded: first bar starts at 0")
	}
}

func TestProjectInFlightSpanUsesNow(t *testing.T) {
	now := t0.Add(30 * time.Second)
	spans := []*Span{
		span("done", "", 0, 10*time.Second),
		span("open", "", 5*time.Second, -1), // no end time
	}
	out := Project(spans, ProjectOptions{Now: now})

	// The open span runs to "now", so it must be the widest bar.
	if out[1].Width <= out[0].Width {
		t.Errorf("in-flight bar (%.1f) narrower than finished bar (%.1f)", out[1].Width, out[0].Width)
	}
	if out[1].DurationMs != 25_000 {
		t.Errorf("in-flight duration = %.0fms, want 25000", out[1].DurationMs)
	}
}

func TestProjectExplicitRange(t *testing.T) {
	spans := []*Span{span("a", "", 10*time.Second, 20*time.Second)}
	r := &TimeRange{Start: t0, End: t0.Add(40 * time.Second)}
	out := Project(spans, ProjectOptions{Range: r, Now: t0.Add(time.Minute)})

	// 10s..20s inside a padded 40s window: the bar sits left of center.
	if out[0].X <= 0 || out[0].X >= DefaultAxisWidth/2 {
		t.Errorf("bar X = %.1f, expected within (0, %d)", out[0].X, int(DefaultAxisWidth/2))
	}
}

func TestProjectReproducible(t *testing.T) {
	now := t0.Add(time.Minute)
	spans := []*Span{
		span("a", "", 0, 59*time.Millisecond),
		span("b", "a", time.Millisecond, 2*time.Millisecond),
	}
	first := Project(spans, ProjectOptions{Now: now})
	for i := 0; i < 5; i++ {
		again := Project(spans, ProjectOptions{Now: now})
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("projection not reproducible: %+v vs %+v", again[j], first[j])
			}
		}
	}
}

func TestProjectLabelHint(t *testing.T) {
	spans := []*Span{
		span("long", "", 0, 50*time.Second),
		span("short", "", 0, 10*time.Millisecond),
	}
	out := Project(spans, ProjectOptions{Now: t0.Add(time.Minute)})
	if !out[0].LabelFits {
		t.Error("wide bar should fit its label")
	}
	if out[1].LabelFits {
		t.Error("sliver bar should not claim label space")
	}
}

func TestWaterfallRendering(t *testing.T) {
	spans := []*Span{
		span("kickoff", "", 0, 10*time.Second),
		span("research", "kickoff", time.Second, 6*time.Second),
		span("write", "kickoff", 6*time.Second, 9*time.Second),
	}
	spans[2].Status = "failed"

	out := Waterfall(spans, 100, t0.Add(time.Minute))
	if out == "" {
		t.Fatal("empty waterfall")
	}
	for _, want := range []string{"3 spans", "kickoff", "├─", "!! ERR", "#"} {
		if !strings.Contains(out, want) {
			t.Errorf("waterfall missing %q:\n%s", want, out)
		}
	}
}

func TestWaterfallEmpty(t *testing.T) {
	if got := Waterfall(nil, 80, time.Time{}); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
