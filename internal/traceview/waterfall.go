package traceview

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxWaterfallRows = 100
	barWidth         = 24

	statusFailed = "failed"
)

// Waterfall renders an ASCII waterfall of one trace for terminal output.
// Width controls the total line width; 0 uses 80. The span order and tree
// shape come from BuildForest/Flatten with everything expanded, so the
// CLI shows the same hierarchy as the web viewers.
func Waterfall(spans []*Span, width int, now time.Time) string {
	if len(spans) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	if now.IsZero() {
		now = time.Now()
	}

	roots := BuildForest(spans)
	rows := Flatten(roots, NewExpandState())

	overflow := 0
	if len(rows) > maxWaterfallRows {
		overflow = len(rows) - maxWaterfallRows
		rows = rows[:maxWaterfallRows]
	}

	axisStart, axisEnd := axisRange(rows, nil, now)
	total := axisEnd.Sub(axisStart)

	var b strings.Builder
	fmt.Fprintf(&b, "%d spans, %s total\n", len(spans), formatDuration(total))

	// First pass: widest duration/error suffix, for a consistent right edge.
	maxDurLen := 0
	for _, s := range rows {
		l := len(formatDuration(s.Duration(now)))
		if s.Status == statusFailed {
			l += 7 // " !! ERR"
		}
		if l > maxDurLen {
			maxDurLen = l
		}
	}

	for _, s := range rows {
		renderWaterfallRow(&b, s, axisStart, total, width, maxDurLen, now)
	}
	if overflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more spans\n", overflow)
	}
	return b.String()
}

func renderWaterfallRow(b *strings.Builder, s *Span, axisStart time.Time, total time.Duration, width, maxDurLen int, now time.Time) {
	// Indentation by derived depth. Tree characters are multi-byte UTF-8
	// but occupy one display column each.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	for d := 1; d < s.Depth; d++ {
		prefix.WriteString("│ ")
		prefixCols += 2
	}
	if s.Depth > 0 {
		prefix.WriteString("├─ ")
		prefixCols += 3
	}

	label := s.Name
	if s.ServiceName != "" {
		label = s.ServiceName + "." + s.Name
	}

	durStr := formatDuration(s.Duration(now))
	suffix := durStr
	if s.Status == statusFailed {
		suffix += " !! ERR"
	} else if s.InFlight() {
		suffix += " …"
	}

	fixedCols := prefixCols + 2 + barWidth + 2 + maxDurLen
	budget := width - fixedCols
	if budget < 8 {
		budget = 8
	}
	if len(label) > budget {
		label = label[:budget-1] + "…"
	}
	padded := label + strings.Repeat(" ", max(0, budget-len(label)))

	bar := buildBar(s, axisStart, total, now)
	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), padded, bar, suffix)
}

func buildBar(s *Span, axisStart time.Time, total time.Duration, now time.Time) string {
	if total <= 0 {
		return strings.Repeat("#", barWidth)
	}

	end := s.End
	if end.IsZero() {
		end = now
	}
	if end.Before(s.Start) {
		end = s.Start
	}

	startPos := int(float64(s.Start.Sub(axisStart)) / float64(total) * barWidth)
	endPos := int(float64(end.Sub(axisStart)) / float64(total) * barWidth)
	if startPos >= barWidth {
		startPos = barWidth - 1
	}
	if startPos < 0 {
		startPos = 0
	}
	if endPos > barWidth {
		endPos = barWidth
	}
	if endPos <= startPos {
		endPos = startPos + 1 // zero-duration spans still get one cell
	}

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
