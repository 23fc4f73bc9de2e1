// Package traceview turns a fetched batch of execution spans into the
// shapes the trace viewers need: a parent-linked forest, a flattened
// depth-tagged row list, a time-scaled bar layout, and an ASCII waterfall
// for the CLI. Spans are an immutable batch per trace selection; every
// view is re-derived, never patched in place.
package traceview

import "time"

// Span is one recorded unit of execution. Depth and Children are derived
// by BuildForest/Flatten; incoming values on either are ignored.
type Span struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ServiceName string            `json:"service_name,omitempty"`
	ParentID    string            `json:"parent_id,omitempty"`
	Status      string            `json:"status"`
	Start       time.Time         `json:"start_time"`
	End         time.Time         `json:"end_time"` // zero = still in flight
	Tags        map[string]string `json:"tags,omitempty"`
	Logs        []SpanLog         `json:"logs,omitempty"`

	Depth    int     `json:"depth"`
	Children []*Span `json:"children,omitempty"`
}

// SpanLog is one log line attached to a span.
type SpanLog struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// InFlight reports whether the span has not ended yet.
func (s *Span) InFlight() bool { return s.End.IsZero() }

// Duration returns the span's duration, measuring open spans against now.
// The duration of an in-flight span is never stored, always computed at
// render time.
func (s *Span) Duration(now time.Time) time.Duration {
	end := s.End
	if end.IsZero() {
		end = now
	}
	if end.Before(s.Start) {
		return 0
	}
	return end.Sub(s.Start)
}
