package traceview

import "time"

// Projection defaults. AxisWidth is in abstract render units; the web UI
// scales them to pixels.
const (
	DefaultAxisWidth = 1000.0
	DefaultMinWidth  = 3.0

	// Bars at least this wide get their label drawn inline.
	labelMinWidth = 60.0

	// Fraction of the axis range padded onto each end so bars are not
	// clipped at the edges.
	axisPadding = 0.05
)

// TimeRange is an explicit axis range for Project.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// PositionedSpan is one bar on the shared time axis.
type PositionedSpan struct {
	Span       *Span   `json:"span"`
	Row        int     `json:"row"`
	X          float64 `json:"x"`
	Width      float64 `json:"width"`
	LabelFits  bool    `json:"label_fits"`
	ParentRow  int     `json:"parent_row"` // -1 when the parent is not on the axis
	DurationMs float64 `json:"duration_ms"`
}

// ProjectOptions tunes the projection. Zero values select the defaults.
type ProjectOptions struct {
	AxisWidth float64
	MinWidth  float64
	Range     *TimeRange // explicit axis range; nil derives it from the spans
	Now       time.Time  // clock for in-flight spans; zero means time.Now()
}

// Project maps spans onto a shared time axis. Row indexes follow the
// input order, which is normally the flattener's depth-first order. The
// output is reproducible for identical inputs, including the label
// placement hint.
//
// Empty input returns an empty result, never an error.
func Project(spans []*Span, opts ProjectOptions) []PositionedSpan {
	if len(spans) == 0 {
		return nil
	}
	if opts.AxisWidth <= 0 {
		opts.AxisWidth = DefaultAxisWidth
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	start, end := axisRange(spans, opts.Range, now)
	span := end.Sub(start)
	pad := time.Duration(float64(span) * axisPadding)
	start = start.Add(-pad)
	end = end.Add(pad)
	total := float64(end.Sub(start))

	rowOf := make(map[string]int, len(spans))
	for i, s := range spans {
		rowOf[s.ID] = i
	}

	out := make([]PositionedSpan, len(spans))
	for i, s := range spans {
		sEnd := s.End
		if sEnd.IsZero() {
			sEnd = now
		}
		if sEnd.Before(s.Start) {
			sEnd = s.Start
		}

		var x, w float64
		if total > 0 {
			x = float64(s.Start.Sub(start)) / total * opts.AxisWidth
			w = float64(sEnd.Sub(s.Start)) / total * opts.AxisWidth
		}
		if w < opts.MinWidth {
			w = opts.MinWidth
		}
		if x < 0 {
			x = 0
		}
		if x+w > opts.AxisWidth {
			x = opts.AxisWidth - w
			if x < 0 {
				x, w = 0, opts.AxisWidth
			}
		}

		parentRow := -1
		if s.ParentID != "" {
			if r, ok := rowOf[s.ParentID]; ok {
				parentRow = r
			}
		}

		out[i] = PositionedSpan{
			Span:       s,
			Row:        i,
			X:          x,
			Width:      w,
			LabelFits:  w >= labelMinWidth,
			ParentRow:  parentRow,
			DurationMs: float64(s.Duration(now)) / float64(time.Millisecond),
		}
	}
	return out
}

// axisRange derives [min start, max end] over the spans, defaulting the
// end of in-flight spans to now, unless an explicit range was supplied.
func axisRange(spans []*Span, explicit *TimeRange, now time.Time) (time.Time, time.Time) {
	if explicit != nil {
		return explicit.Start, explicit.End
	}
	start := spans[0].Start
	end := spans[0].End
	if end.IsZero() {
		end = now
	}
	for _, s := range spans[1:] {
		if s.Start.Before(start) {
			start = s.Start
		}
		e := s.End
		if e.IsZero() {
			e = now
		}
		if e.After(end) {
			end = e
		}
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}
